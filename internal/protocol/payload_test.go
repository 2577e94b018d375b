package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestPayloadRoundTrip(t *testing.T) {
	in := &LibrarySearchRequest{Keyword: "操作系统", Page: 2}

	data, err := MarshalRequestPayload(in)
	require.NoError(t, err)

	out, err := UnmarshalRequestPayload(data)
	require.NoError(t, err)
	require.Equal(t, KindLibrarySearch, out.PayloadKind())
	require.Equal(t, in, out)
}

func TestResponsePayloadRoundTrip(t *testing.T) {
	in := &ScoreListResponse{Scores: []Score{
		{Course: "数据结构", Credit: 3.5, Value: 91, SchoolYear: "2023-2024", Semester: 1},
	}}

	data, err := MarshalResponsePayload(in)
	require.NoError(t, err)

	out, err := UnmarshalResponsePayload(data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalRequestPayload([]byte{0xEE, 0x00})
	require.ErrorContains(t, err, "unknown request payload kind")

	_, err = UnmarshalResponsePayload([]byte{0xEE, 0x00})
	require.ErrorContains(t, err, "unknown response payload kind")
}

func TestUnmarshalRejectsEmptyPayload(t *testing.T) {
	_, err := UnmarshalRequestPayload(nil)
	require.Error(t, err)
}
