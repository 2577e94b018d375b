package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind discriminates the payload union carried in frame bodies. Adding a new
// remote operation means adding a new kind plus its request/response pair,
// never changing an existing one.
type Kind uint8

const (
	KindPing Kind = iota + 1
	KindAgentInfo
	KindActivityList
	KindScoreList
	KindLibrarySearch
	KindBookHolding
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindAgentInfo:
		return "agent-info"
	case KindActivityList:
		return "activity-list"
	case KindScoreList:
		return "score-list"
	case KindLibrarySearch:
		return "library-search"
	case KindBookHolding:
		return "book-holding"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Response codes. Zero is success; everything else carries a message body.
const (
	CodeOK               uint16 = 0
	CodeHandlerError     uint16 = 1
	CodeUnknownOperation uint16 = 2
	CodeBadPayload       uint16 = 3
)

// RequestPayload is one member of the request union.
type RequestPayload interface {
	PayloadKind() Kind
}

// ResponsePayload is one member of the response union.
type ResponsePayload interface {
	PayloadKind() Kind
}

type PingRequest struct {
	SentAt int64 `msgpack:"sentAt"`
}

type AgentInfoRequest struct{}

type ActivityListRequest struct {
	Page  int `msgpack:"page"`
	Count int `msgpack:"count"`
}

type ScoreListRequest struct {
	Account    string `msgpack:"account"`
	SchoolYear string `msgpack:"schoolYear"`
	Semester   int    `msgpack:"semester"`
}

type LibrarySearchRequest struct {
	Keyword string `msgpack:"keyword"`
	Page    int    `msgpack:"page"`
}

type BookHoldingRequest struct {
	BookID string `msgpack:"bookId"`
}

func (PingRequest) PayloadKind() Kind          { return KindPing }
func (AgentInfoRequest) PayloadKind() Kind     { return KindAgentInfo }
func (ActivityListRequest) PayloadKind() Kind  { return KindActivityList }
func (ScoreListRequest) PayloadKind() Kind     { return KindScoreList }
func (LibrarySearchRequest) PayloadKind() Kind { return KindLibrarySearch }
func (BookHoldingRequest) PayloadKind() Kind   { return KindBookHolding }

// AgentStats is a point-in-time resource sample reported by an agent.
type AgentStats struct {
	CPUPercent float64 `msgpack:"cpuPercent"`
	RSSBytes   uint64  `msgpack:"rssBytes"`
	Goroutines int     `msgpack:"goroutines"`
}

type PingResponse struct {
	SentAt    int64      `msgpack:"sentAt"`
	RepliedAt int64      `msgpack:"repliedAt"`
	Stats     AgentStats `msgpack:"stats"`
}

type AgentInfoResponse struct {
	Name    string     `msgpack:"name"`
	Version string     `msgpack:"version"`
	Stats   AgentStats `msgpack:"stats"`
}

type Activity struct {
	ID      int    `msgpack:"id"`
	Title   string `msgpack:"title"`
	StartAt int64  `msgpack:"startAt"`
	Place   string `msgpack:"place"`
}

type ActivityListResponse struct {
	Activities []Activity `msgpack:"activities"`
}

type Score struct {
	Course     string  `msgpack:"course"`
	Credit     float32 `msgpack:"credit"`
	Value      float32 `msgpack:"value"`
	SchoolYear string  `msgpack:"schoolYear"`
	Semester   int     `msgpack:"semester"`
}

type ScoreListResponse struct {
	Scores []Score `msgpack:"scores"`
}

type Book struct {
	ID        string `msgpack:"id"`
	Title     string `msgpack:"title"`
	Author    string `msgpack:"author"`
	Publisher string `msgpack:"publisher"`
	CallNo    string `msgpack:"callNo"`
}

type LibrarySearchResponse struct {
	Books []Book `msgpack:"books"`
	Total int    `msgpack:"total"`
}

type Holding struct {
	Barcode  string `msgpack:"barcode"`
	Location string `msgpack:"location"`
	State    string `msgpack:"state"`
}

type BookHoldingResponse struct {
	Holdings []Holding `msgpack:"holdings"`
}

func (PingResponse) PayloadKind() Kind          { return KindPing }
func (AgentInfoResponse) PayloadKind() Kind     { return KindAgentInfo }
func (ActivityListResponse) PayloadKind() Kind  { return KindActivityList }
func (ScoreListResponse) PayloadKind() Kind     { return KindScoreList }
func (LibrarySearchResponse) PayloadKind() Kind { return KindLibrarySearch }
func (BookHoldingResponse) PayloadKind() Kind   { return KindBookHolding }

// MarshalRequestPayload encodes a union member as one kind byte followed by
// its msgpack body.
func MarshalRequestPayload(p RequestPayload) ([]byte, error) {
	return marshalPayload(p.PayloadKind(), p)
}

// MarshalResponsePayload encodes a union member as one kind byte followed by
// its msgpack body.
func MarshalResponsePayload(p ResponsePayload) ([]byte, error) {
	return marshalPayload(p.PayloadKind(), p)
}

func marshalPayload(kind Kind, v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	out := make([]byte, 1+len(body))
	out[0] = byte(kind)
	copy(out[1:], body)
	return out, nil
}

// UnmarshalRequestPayload decodes a request union member from data.
func UnmarshalRequestPayload(data []byte) (RequestPayload, error) {
	kind, body, err := splitPayload(data)
	if err != nil {
		return nil, err
	}
	var p RequestPayload
	switch kind {
	case KindPing:
		p = &PingRequest{}
	case KindAgentInfo:
		p = &AgentInfoRequest{}
	case KindActivityList:
		p = &ActivityListRequest{}
	case KindScoreList:
		p = &ScoreListRequest{}
	case KindLibrarySearch:
		p = &LibrarySearchRequest{}
	case KindBookHolding:
		p = &BookHoldingRequest{}
	default:
		return nil, fmt.Errorf("unknown request payload kind %d", uint8(kind))
	}
	if err := msgpack.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// UnmarshalResponsePayload decodes a response union member from data.
func UnmarshalResponsePayload(data []byte) (ResponsePayload, error) {
	kind, body, err := splitPayload(data)
	if err != nil {
		return nil, err
	}
	var p ResponsePayload
	switch kind {
	case KindPing:
		p = &PingResponse{}
	case KindAgentInfo:
		p = &AgentInfoResponse{}
	case KindActivityList:
		p = &ActivityListResponse{}
	case KindScoreList:
		p = &ScoreListResponse{}
	case KindLibrarySearch:
		p = &LibrarySearchResponse{}
	case KindBookHolding:
		p = &BookHoldingResponse{}
	default:
		return nil, fmt.Errorf("unknown response payload kind %d", uint8(kind))
	}
	if err := msgpack.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

func splitPayload(data []byte) (Kind, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("payload missing kind byte")
	}
	return Kind(data[0]), data[1:], nil
}
