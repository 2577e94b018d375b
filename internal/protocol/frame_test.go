package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"testing/iotest"
)

func TestRequestRoundTrip(t *testing.T) {
	body := make([]byte, 5000)
	for i := range body {
		body[i] = byte(i)
	}
	req := &Request{Seq: 42, Body: body}

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := ReadRequest(&buf, 0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Seq != req.Seq {
		t.Fatalf("seq mismatch: got %d want %d", decoded.Seq, req.Seq)
	}
	if !bytes.Equal(decoded.Body, req.Body) {
		t.Fatalf("body mismatch")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp := &Response{Ack: 7, Code: 3, Body: []byte("账户不存在")}

	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := ReadResponse(&buf, 0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Ack != resp.Ack || decoded.Code != resp.Code {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if !bytes.Equal(decoded.Body, resp.Body) {
		t.Fatalf("body mismatch")
	}
	var remote *RemoteError
	if err := decoded.Err(); !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	} else if remote.Message != "账户不存在" {
		t.Fatalf("unexpected message %q", remote.Message)
	}
}

func TestReadRequestRejectsOversizedDeclaration(t *testing.T) {
	// Header declares far more bytes than will ever arrive. The decoder
	// must reject on the declared size alone, before reading the body.
	header := make([]byte, requestHeaderLen)
	binary.BigEndian.PutUint64(header[0:8], 1)
	binary.BigEndian.PutUint32(header[8:12], uint32(MaxPayloadSize+1))

	_, err := ReadRequest(bytes.NewReader(header), 0)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadResponseRejectsAboveConfiguredBound(t *testing.T) {
	resp := &Response{Ack: 1, Body: make([]byte, 1024)}
	var buf bytes.Buffer
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	_, err := ReadResponse(&buf, 512)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadRequestToleratesShortReads(t *testing.T) {
	body := make([]byte, 9000) // spans several read chunks
	for i := range body {
		body[i] = byte(i * 7)
	}
	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Seq: 9, Body: body}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := ReadRequest(iotest.OneByteReader(&buf), 0)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Body, body) {
		t.Fatalf("body mismatch after short reads")
	}
}

func TestReadRequestTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Seq: 3, Body: []byte("abcdef")}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]

	if _, err := ReadRequest(bytes.NewReader(truncated), 0); err == nil {
		t.Fatal("expected error on truncated body")
	}
}

func BenchmarkWriteRequest(b *testing.B) {
	payload := make([]byte, 32*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	req := &Request{Seq: 1, Body: payload}

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := WriteRequest(&buf, req); err != nil {
			b.Fatalf("encode failed: %v", err)
		}
	}
}

func BenchmarkReadResponse(b *testing.B) {
	payload := make([]byte, 32*1024)
	var buf bytes.Buffer
	if err := WriteResponse(&buf, &Response{Ack: 1, Body: payload}); err != nil {
		b.Fatalf("encode failed: %v", err)
	}
	frame := buf.Bytes()

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	for i := 0; i < b.N; i++ {
		if _, err := ReadResponse(bytes.NewReader(frame), 0); err != nil {
			b.Fatalf("decode failed: %v", err)
		}
	}
}
