package protocol

import (
	"bytes"
	"testing"
)

func FuzzReadResponse(f *testing.F) {
	var seed bytes.Buffer
	_ = WriteResponse(&seed, &Response{Ack: 1, Code: 0, Body: []byte("seed123")})
	f.Add(seed.Bytes())

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, err := ReadResponse(bytes.NewReader(data), 1<<16)
		if err != nil {
			return
		}
		var buf bytes.Buffer
		if err := WriteResponse(&buf, resp); err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		decoded, err := ReadResponse(&buf, 1<<16)
		if err != nil {
			t.Fatalf("re-decode failed: %v", err)
		}
		if decoded.Ack != resp.Ack || decoded.Code != resp.Code {
			t.Fatalf("header mismatch after round trip")
		}
		if !bytes.Equal(decoded.Body, resp.Body) {
			t.Fatalf("body mismatch after round trip")
		}
	})
}
