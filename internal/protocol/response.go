package protocol

import "time"

// Version is the protocol version marker carried by every envelope.
const Version = "1.0"

// Response is the closed set of reply shapes the dispatcher can produce.
type Response interface {
	response()
}

// RegisterResult is the reply to register_user. Its status string encodes
// the three possible outcomes: "newreg", "true" (already registered,
// password matches) and "false" (already registered, password mismatch).
type RegisterResult struct {
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

func (RegisterResult) response() {}

// ErrorBody is the errors member of an envelope. Success envelopes carry it
// too, with code 200, mirroring the wire format this server replaced.
type ErrorBody struct {
	Time   float64 `json:"time"`
	Status string  `json:"status"`
	Code   int     `json:"code"`
	Detail string  `json:"detail"`
}

// JSONAPI carries the fixed protocol version marker.
type JSONAPI struct {
	Version string `json:"version"`
}

// FlowRecord is the projection of a flow inside an all_flow reply.
type FlowRecord struct {
	FlowID      uint64 `json:"flowId"`
	TimeCreated int64  `json:"timeCreated"`
	FlowType    string `json:"flowType"`
	Title       string `json:"title"`
	Info        string `json:"info"`
}

// MessageRecord is the projection of a stored message.
type MessageRecord struct {
	Mode      string `json:"mode"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// EnvelopeData is the data member of an envelope. Error envelopes serialize
// it as null; success envelopes always carry at least the reply time.
type EnvelopeData struct {
	Time  float64      `json:"time"`
	Flows []FlowRecord `json:"flows,omitempty"`
	Meta  any          `json:"meta"`
}

// Envelope is the general reply shape: a type tag, an optional data payload,
// an errors object and the protocol version. Both data and errors are
// always present as keys, one of them null, for compatibility with existing
// clients.
type Envelope struct {
	Type    string        `json:"type"`
	Data    *EnvelopeData `json:"data"`
	Errors  *ErrorBody    `json:"errors"`
	JSONAPI JSONAPI       `json:"jsonapi"`
	Meta    any           `json:"meta"`
}

func (*Envelope) response() {}

// Success wraps data in an envelope for reqType. The errors member reports
// 200/"successfully", matching the legacy wire shape.
func Success(reqType string, data *EnvelopeData) *Envelope {
	body := NewErrorBody(200, "successfully")
	return &Envelope{
		Type:    reqType,
		Data:    data,
		Errors:  &body,
		JSONAPI: JSONAPI{Version: Version},
	}
}

// Failure builds an error envelope for reqType with the given code and
// detail. The data and meta members serialize as null.
func Failure(reqType string, code int, detail string) *Envelope {
	body := NewErrorBody(code, detail)
	return &Envelope{
		Type:    reqType,
		Errors:  &body,
		JSONAPI: JSONAPI{Version: Version},
	}
}

// ValidationFailure is the reply to any request that does not pass schema
// validation.
func ValidationFailure() *Envelope {
	return Failure("error", 400, "JSON validation error")
}

// Unsupported is the reply to a recognized-but-unimplemented or unknown
// request type.
func Unsupported(reqType string) *Envelope {
	return Failure(reqType, 400, "Method not supported by server")
}

// NewErrorBody stamps an ErrorBody with the current time and the reason
// phrase for code. Codes outside the catalog degrade to 520/"Unknown Error"
// and the detail keeps whatever the caller passed.
func NewErrorBody(code int, detail string) ErrorBody {
	status, known := statusText[code]
	if !known {
		code = 520
		status = statusText[520]
	}
	return ErrorBody{
		Time:   UnixNow(),
		Status: status,
		Code:   code,
		Detail: detail,
	}
}

// statusText maps response codes to their reason phrases. 520 and 526 come
// from the extended range the original protocol used for transport-level
// failures.
var statusText = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	409: "Conflict",
	415: "Unsupported Media Type",
	417: "Expectation Failed",
	426: "Upgrade Required",
	429: "Too Many Requests",
	500: "Internal Server Error",
	503: "Service Unavailable",
	520: "Unknown Error",
	526: "Invalid SSL Certificate",
}

// UnixNow is the envelope timestamp: unix seconds with fractional part, the
// precision the wire format carries in every time member.
func UnixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
