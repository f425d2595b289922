package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Recognized request type tags. Only the first three are implemented; the
// rest are reserved names the dispatcher answers with an unsupported-method
// envelope.
const (
	TypeRegisterUser   = "register_user"
	TypeAllFlow        = "all_flow"
	TypeAddFlow        = "add_flow"
	TypeGetUpdate      = "get_update"
	TypeSendMessage    = "send_message"
	TypeAllMessage     = "all_message"
	TypeUserInfo       = "user_info"
	TypeAuthentication = "authentication"
	TypeDeleteUser     = "delete_user"
	TypeDeleteMessage  = "delete_message"
	TypeEditedMessage  = "edited_message"
	TypePingPong       = "ping_pong"
)

// ErrValidation indicates a request envelope that does not match the wire
// schema. The dispatcher turns it into a code-400 response.
var ErrValidation = errors.New("protocol: validation error")

// Request is a validated inbound envelope. Exactly one payload field is
// populated, matching Type.
type Request struct {
	Type         string
	RegisterUser *RegisterUserData
	AddFlow      *AddFlowData
}

// RegisterUserData carries the credentials submitted with register_user.
type RegisterUserData struct {
	Login    string
	Password string
}

// AddFlowData describes the flow to create for add_flow.
type AddFlowData struct {
	FlowType string
	Title    string
	Info     string
}

// Parse validates raw JSON against the request schema and returns the typed
// envelope. The payload is decoded only after the type tag is known; any
// schema violation is reported as an error wrapping ErrValidation. Parse is
// pure: the same input always yields the same result.
func Parse(raw []byte) (Request, error) {
	var outer struct {
		Type *string         `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if outer.Type == nil {
		return Request{}, fmt.Errorf("%w: missing field type", ErrValidation)
	}
	if *outer.Type == "" {
		return Request{}, fmt.Errorf("%w: empty field type", ErrValidation)
	}

	req := Request{Type: *outer.Type}

	switch req.Type {
	case TypeRegisterUser:
		data, err := parseRegisterUser(outer.Data)
		if err != nil {
			return Request{}, err
		}
		req.RegisterUser = data
	case TypeAddFlow:
		data, err := parseAddFlow(outer.Data)
		if err != nil {
			return Request{}, err
		}
		req.AddFlow = data
	}

	return req, nil
}

func parseRegisterUser(data json.RawMessage) (*RegisterUserData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing field data", ErrValidation)
	}
	var payload struct {
		User *struct {
			Login    *string `json:"login"`
			Password *string `json:"password"`
		} `json:"user"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if payload.User == nil {
		return nil, fmt.Errorf("%w: missing field data.user", ErrValidation)
	}
	if payload.User.Login == nil {
		return nil, fmt.Errorf("%w: missing field data.user.login", ErrValidation)
	}
	if payload.User.Password == nil {
		return nil, fmt.Errorf("%w: missing field data.user.password", ErrValidation)
	}
	return &RegisterUserData{Login: *payload.User.Login, Password: *payload.User.Password}, nil
}

func parseAddFlow(data json.RawMessage) (*AddFlowData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: missing field data", ErrValidation)
	}
	var payload struct {
		FlowType *string `json:"flow_type"`
		Title    *string `json:"title"`
		Info     *string `json:"info"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if payload.FlowType == nil {
		return nil, fmt.Errorf("%w: missing field data.flow_type", ErrValidation)
	}
	if payload.Title == nil {
		return nil, fmt.Errorf("%w: missing field data.title", ErrValidation)
	}
	if payload.Info == nil {
		return nil, fmt.Errorf("%w: missing field data.info", ErrValidation)
	}
	return &AddFlowData{FlowType: *payload.FlowType, Title: *payload.Title, Info: *payload.Info}, nil
}
