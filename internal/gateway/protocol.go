package gateway

import "encoding/json"

// ProtocolVersion is the only frame protocol revision this gateway speaks.
const ProtocolVersion = 1

// Frame kinds carried in Frame.Type.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Frame is one WebSocket message. Which fields are set depends on Type:
// requests carry ID, Method and Params; responses carry ID, OK and either
// Payload or Error; events carry Event, Payload and Seq.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectParams are the params of the connect request that answers the
// server's challenge.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	// Language the client wants to be addressed in, e.g. "french". Empty
	// keeps the server's currentLanguage.
	Language string `json:"language,omitempty"`
}

// ClientInfo describes the connecting program.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"` // app or cli
}

// ConnectAuth holds whichever credential the gateway's auth mode expects.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the payload of a successful connect response.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo names the gateway build and the id it assigned the connection.
// ConnID is also the client id discussions are tracked under.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the methods a client may call and the events it may see.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy carries the limits a client must respect.
type ServerPolicy struct {
	MaxPayload int `json:"maxPayload"`
}

var serverEvents = []string{
	"connect.challenge",
	"discussion_created",
	"discussion",
	"notification",
	"show_blocking_message",
	"hide_blocking_message",
}

// NewDiscussionParams are the params of new_discussion.
type NewDiscussionParams struct {
	Title string `json:"title"`
}

// NewDiscussionResult answers new_discussion. Tokens is always present and
// null when no count was available.
type NewDiscussionResult struct {
	ID          int64  `json:"id"`
	Outcome     string `json:"outcome"`
	Language    string `json:"language,omitempty"`
	PackCreated bool   `json:"packCreated"`
	Audio       string `json:"audio,omitempty"`
	Tokens      *int   `json:"tokens"`
}

// LoadDiscussionParams are the params of load_discussion. Without an id the
// client's active discussion is reloaded.
type LoadDiscussionParams struct {
	ID *int64 `json:"id,omitempty"`
}

// LanguageParams are the params of language.set.
type LanguageParams struct {
	Language string `json:"language"`
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func okFlag(ok bool) *bool { return &ok }

// NewRequest builds a request frame calling method with params.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := rawJSON(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse builds the successful response to request id.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := rawJSON(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeResponse, ID: id, OK: okFlag(true), Payload: raw}, nil
}

// NewErrorResponse builds the failed response to request id.
func NewErrorResponse(id, code, message string) Frame {
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    okFlag(false),
		Error: &ErrorShape{Code: code, Message: message},
	}
}

// NewEvent builds an event frame numbered seq.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := rawJSON(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}

// Succeeded reports whether f is a response with ok=true.
func (f Frame) Succeeded() bool {
	return f.Type == FrameTypeResponse && f.OK != nil && *f.OK
}
