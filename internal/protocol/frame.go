package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxPayloadSize bounds the declared body size of a single frame.
	MaxPayloadSize = 10 << 20

	// readChunkSize keeps individual transport reads small so a declared
	// size is never trusted with one large blocking read.
	readChunkSize = 2 << 10

	requestHeaderLen  = 12 // seq u64 + size u32
	responseHeaderLen = 14 // ack u64 + size u32 + code u16
)

// ErrPayloadTooLarge is returned before any body bytes are read when a frame
// declares a size above the configured bound.
var ErrPayloadTooLarge = errors.New("frame payload exceeds size bound")

// Request is one host-to-agent frame. Seq is the correlation key: unique per
// outstanding request for the lifetime of the issuing process.
type Request struct {
	Seq  uint64
	Body []byte
}

// Response is one agent-to-host frame. Ack echoes the Seq of the request it
// answers. Code zero means success; any other value marks an application
// error whose UTF-8 message is carried in Body.
type Response struct {
	Ack  uint64
	Code uint16
	Body []byte
}

// Header fields are always written in network byte order so host and agent
// builds on different platforms stay wire compatible.

// WriteRequest encodes req onto w as one frame.
func WriteRequest(w io.Writer, req *Request) error {
	if len(req.Body) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, requestHeaderLen+len(req.Body))
	binary.BigEndian.PutUint64(buf[0:8], req.Seq)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(req.Body)))
	copy(buf[requestHeaderLen:], req.Body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write request frame: %w", err)
	}
	return nil
}

// ReadRequest decodes one request frame from r. maxPayload <= 0 falls back
// to MaxPayloadSize.
func ReadRequest(r io.Reader, maxPayload int) (*Request, error) {
	header := make([]byte, requestHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[8:12])
	body, err := readBody(r, int(size), maxPayload)
	if err != nil {
		return nil, err
	}
	return &Request{
		Seq:  binary.BigEndian.Uint64(header[0:8]),
		Body: body,
	}, nil
}

// WriteResponse encodes resp onto w as one frame.
func WriteResponse(w io.Writer, resp *Response) error {
	if len(resp.Body) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, responseHeaderLen+len(resp.Body))
	binary.BigEndian.PutUint64(buf[0:8], resp.Ack)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(resp.Body)))
	binary.BigEndian.PutUint16(buf[12:14], resp.Code)
	copy(buf[responseHeaderLen:], resp.Body)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write response frame: %w", err)
	}
	return nil
}

// ReadResponse decodes one response frame from r. maxPayload <= 0 falls back
// to MaxPayloadSize.
func ReadResponse(r io.Reader, maxPayload int) (*Response, error) {
	header := make([]byte, responseHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[8:12])
	body, err := readBody(r, int(size), maxPayload)
	if err != nil {
		return nil, err
	}
	return &Response{
		Ack:  binary.BigEndian.Uint64(header[0:8]),
		Code: binary.BigEndian.Uint16(header[12:14]),
		Body: body,
	}, nil
}

// readBody validates the declared size before allocating, then fills the
// buffer in bounded chunks, tolerating short reads from the transport.
func readBody(r io.Reader, size, maxPayload int) ([]byte, error) {
	if maxPayload <= 0 {
		maxPayload = MaxPayloadSize
	}
	if size > maxPayload {
		return nil, fmt.Errorf("%w: declared %d, limit %d", ErrPayloadTooLarge, size, maxPayload)
	}
	if size == 0 {
		return nil, nil
	}
	body := make([]byte, size)
	for off := 0; off < size; {
		end := off + readChunkSize
		if end > size {
			end = size
		}
		n, err := io.ReadFull(r, body[off:end])
		off += n
		if err != nil {
			return nil, fmt.Errorf("read frame body at %d/%d: %w", off, size, err)
		}
	}
	return body, nil
}

// RemoteError carries a non-zero response code and the message the remote
// side attached to it.
type RemoteError struct {
	Code    uint16
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (code %d): %s", e.Code, e.Message)
}

// Err converts a non-zero response code into a RemoteError, nil otherwise.
func (r *Response) Err() error {
	if r.Code == CodeOK {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: string(r.Body)}
}

// NewErrorResponse builds a response frame carrying an error message.
func NewErrorResponse(ack uint64, code uint16, message string) *Response {
	return &Response{Ack: ack, Code: code, Body: []byte(message)}
}
