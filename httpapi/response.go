// Package httpapi is the thin HTTP interface boundary over the sidecar's
// core: health probes and a correlation-ID middleware. The configuration
// loader, TLS material, and the CQL driver wire protocol live outside
// this package's concern; httpapi only renders what the core already
// computed.
package httpapi

import (
	"encoding/json"

	"github.com/duocluster/sidecar/apperr"
)

const (
	CodeSuccess = "00"
	CodeFailure = "99"
)

// Message is either a plain string or a {what, why, how} detail triple.
type Message struct {
	Text   string
	Detail *apperr.Detail
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Detail != nil {
		return json.Marshal(struct {
			What string `json:"what"`
			Why  string `json:"why"`
			How  string `json:"how"`
		}{m.Detail.What, m.Detail.Why, m.Detail.How})
	}
	return json.Marshal(m.Text)
}

// UnmarshalJSON accepts either form MarshalJSON writes.
func (m *Message) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		*m = Message{}
		return json.Unmarshal(b, &m.Text)
	}
	var d apperr.Detail
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	*m = Message{Detail: &d}
	return nil
}

// Response is the envelope returned by every health/status endpoint.
type Response struct {
	Code    string      `json:"code"`
	Message Message     `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Ok builds a success Response carrying data.
func Ok(message string, data interface{}) Response {
	return Response{Code: CodeSuccess, Message: Message{Text: message}, Data: data}
}

// Success is Ok without a message override convenience for empty payloads.
func Success(message string) Response {
	return Response{Code: CodeSuccess, Message: Message{Text: message}}
}

// FailureDetail builds a CodeFailure Response with a {what,why,how} body.
func FailureDetail(what, why, how string) Response {
	return Response{Code: CodeFailure, Message: Message{Detail: &apperr.Detail{What: what, Why: why, How: how}}}
}

// FromError renders err (ideally an *apperr.Error) as a failure Response.
func FromError(err error) Response {
	var d = apperr.ToDetail(err)
	return FailureDetail(d.What, d.Why, d.How)
}

// IsSuccess reports whether r carries CodeSuccess.
func (r Response) IsSuccess() bool { return r.Code == CodeSuccess }
