package ocpp

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

// NewMessageId returns a fresh unique id for an outbound call.
func NewMessageId() string {
	return uuid.New().String()
}

// Call An OCPP-J Call message, containing an OCPP Request.
type Call struct {
	TypeId   CallType
	UniqueId string
	Action   string
	Payload  Request
}

func (call *Call) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(call.TypeId)
	fields[1] = call.UniqueId
	fields[2] = call.Action
	fields[3] = call.Payload
	return json.Marshal(fields)
}

func NewCall(request Request) *Call {
	return &Call{
		TypeId:   CallTypeRequest,
		UniqueId: NewMessageId(),
		Action:   request.GetFeatureName(),
		Payload:  request,
	}
}

// CallResult An OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	TypeId   CallType
	UniqueId string
	Payload  Response
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(callResult.TypeId)
	fields[1] = callResult.UniqueId
	fields[2] = callResult.Payload
	return json.Marshal(fields)
}

// CreateCallResult builds a response frame carrying forward the unique id of the call.
func CreateCallResult(confirmation Response, uniqueId string) *CallResult {
	return &CallResult{
		TypeId:   CallTypeResult,
		UniqueId: uniqueId,
		Payload:  confirmation,
	}
}

// CallError An OCPP-J CallError message.
type CallError struct {
	TypeId           CallType
	UniqueId         string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     interface{}
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(callError.TypeId)
	fields[1] = callError.UniqueId
	fields[2] = string(callError.ErrorCode)
	fields[3] = callError.ErrorDescription
	if callError.ErrorDetails != nil {
		fields[4] = callError.ErrorDetails
	} else {
		fields[4] = struct{}{}
	}
	return json.Marshal(fields)
}

func CreateCallError(uniqueId string, code ErrorCode, description string) *CallError {
	return &CallError{
		TypeId:           CallTypeError,
		UniqueId:         uniqueId,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}

// Frame is a parsed but not yet decoded inbound message. The payload stays
// raw until the registry knows which struct to decode it into.
type Frame struct {
	TypeId           CallType
	UniqueId         string
	Action           string
	Payload          json.RawMessage
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// ParseFrame validates the OCPP-J array structure. Violations surface as
// ProtocolError per the RPC framework rules.
func ParseFrame(data []byte) (*Frame, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, NewError(ProtocolError, "message is not a JSON array", "")
	}
	if len(fields) < 3 {
		return nil, NewError(ProtocolError, fmt.Sprintf("expected at least 3 fields, got %d", len(fields)), "")
	}
	var rawTypeId float64
	if err := json.Unmarshal(fields[0], &rawTypeId); err != nil || rawTypeId != math.Trunc(rawTypeId) {
		return nil, NewError(ProtocolError, "message type id is not an integer", "")
	}
	typeId := CallType(rawTypeId)
	var uniqueId string
	if err := json.Unmarshal(fields[1], &uniqueId); err != nil {
		return nil, NewError(ProtocolError, "invalid message unique id", "")
	}
	frame := &Frame{TypeId: typeId, UniqueId: uniqueId}
	switch typeId {
	case CallTypeRequest:
		if len(fields) != 4 {
			return nil, NewError(ProtocolError, "call must have 4 fields", uniqueId)
		}
		if err := json.Unmarshal(fields[2], &frame.Action); err != nil {
			return nil, NewError(ProtocolError, "invalid action", uniqueId)
		}
		frame.Payload = fields[3]
	case CallTypeResult:
		frame.Payload = fields[2]
	case CallTypeError:
		var code string
		if err := json.Unmarshal(fields[2], &code); err != nil {
			return nil, NewError(ProtocolError, "invalid error code", uniqueId)
		}
		frame.ErrorCode = ErrorCode(code)
		if len(fields) > 3 {
			_ = json.Unmarshal(fields[3], &frame.ErrorDescription)
		}
		if len(fields) > 4 {
			frame.ErrorDetails = fields[4]
		}
	default:
		return nil, NewError(ProtocolError, fmt.Sprintf("unsupported message type id: %v", rawTypeId), uniqueId)
	}
	return frame, nil
}
