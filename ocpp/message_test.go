package ocpp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcpsim/types"
)

type pingRequest struct {
	Tag  string          `json:"tag" validate:"required,max=20"`
	When *types.DateTime `json:"when,omitempty"`
}

func (r pingRequest) GetFeatureName() string { return "Ping" }

type pingResponse struct {
	Status string `json:"status" validate:"required,registrationStatus"`
}

func (c pingResponse) GetFeatureName() string { return "Ping" }

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(&Descriptor{
		Action:      "Ping",
		Direction:   Incoming,
		NewRequest:  func() Request { return &pingRequest{} },
		NewResponse: func() Response { return &pingResponse{} },
	})
	r.Register(&Descriptor{
		Action:      "Ping",
		Direction:   Outgoing,
		NewRequest:  func() Request { return &pingRequest{} },
		NewResponse: func() Response { return &pingResponse{} },
	})
	return r
}

func TestCallMarshal(t *testing.T) {
	call := NewCall(&pingRequest{Tag: "TAG1"})
	data, err := call.MarshalJSON()
	require.NoError(t, err)

	var fields []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 4)
	assert.Equal(t, "2", string(fields[0]))
	assert.Equal(t, `"Ping"`, string(fields[2]))
	// absent optional field is omitted, not null
	assert.NotContains(t, string(fields[3]), "when")
}

func TestCallFreshMessageIds(t *testing.T) {
	a := NewCall(&pingRequest{Tag: "a"})
	b := NewCall(&pingRequest{Tag: "b"})
	assert.NotEqual(t, a.UniqueId, b.UniqueId)
	assert.NotEmpty(t, a.UniqueId)
}

func TestCallResultMarshal(t *testing.T) {
	result := CreateCallResult(&pingResponse{Status: "Accepted"}, "id-1")
	data, err := result.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[3,"id-1",{"status":"Accepted"}]`, string(data))
}

func TestCallErrorMarshal(t *testing.T) {
	callError := CreateCallError("id-2", NotImplemented, "no such action")
	data, err := callError.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"id-2","NotImplemented","no such action",{}]`, string(data))
}

func TestParseFrameRequest(t *testing.T) {
	frame, err := ParseFrame([]byte(`[2,"abc","Ping",{"tag":"TAG1"}]`))
	require.NoError(t, err)
	assert.Equal(t, CallTypeRequest, frame.TypeId)
	assert.Equal(t, "abc", frame.UniqueId)
	assert.Equal(t, "Ping", frame.Action)
}

func TestParseFrameRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not an array", `{"a":1}`},
		{"fractional type id", `[2.5,"abc","Ping",{}]`},
		{"string type id", `["2","abc","Ping",{}]`},
		{"unknown type id", `[5,"abc","Ping",{}]`},
		{"too short", `[2,"abc"]`},
		{"request with 3 fields", `[2,"abc","Ping"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tt.input))
			require.Error(t, err)
			var ocppErr *Error
			require.ErrorAs(t, err, &ocppErr)
			assert.Equal(t, ProtocolError, ocppErr.Code)
		})
	}
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	registry := testRegistry()
	call := NewCall(&pingRequest{Tag: "TAG1"})
	data, err := call.MarshalJSON()
	require.NoError(t, err)

	frame, err := ParseFrame(data)
	require.NoError(t, err)
	request, err := registry.DecodeRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, "TAG1", request.(*pingRequest).Tag)
}

func TestDecodeRequestUnknownAction(t *testing.T) {
	registry := testRegistry()
	frame, err := ParseFrame([]byte(`[2,"abc","NoSuchAction",{}]`))
	require.NoError(t, err)
	_, err = registry.DecodeRequest(frame)
	var ocppErr *Error
	require.ErrorAs(t, err, &ocppErr)
	assert.Equal(t, NotImplemented, ocppErr.Code)
	assert.Equal(t, "abc", ocppErr.MessageId)
}

func TestDecodeRequestTypeViolation(t *testing.T) {
	registry := testRegistry()
	frame, err := ParseFrame([]byte(`[2,"abc","Ping",{"tag":17}]`))
	require.NoError(t, err)
	_, err = registry.DecodeRequest(frame)
	var ocppErr *Error
	require.ErrorAs(t, err, &ocppErr)
	assert.Equal(t, TypeConstraintViolation, ocppErr.Code)
}

func TestDecodeRequestMissingRequired(t *testing.T) {
	registry := testRegistry()
	frame, err := ParseFrame([]byte(`[2,"abc","Ping",{}]`))
	require.NoError(t, err)
	_, err = registry.DecodeRequest(frame)
	var ocppErr *Error
	require.ErrorAs(t, err, &ocppErr)
	assert.Equal(t, OccurrenceConstraintViolation, ocppErr.Code)
}

func TestDecodeRequestPropertyViolation(t *testing.T) {
	registry := testRegistry()
	frame, err := ParseFrame([]byte(`[2,"abc","Ping",{"tag":"this-tag-is-way-longer-than-twenty-chars"}]`))
	require.NoError(t, err)
	_, err = registry.DecodeRequest(frame)
	var ocppErr *Error
	require.ErrorAs(t, err, &ocppErr)
	assert.Equal(t, PropertyConstraintViolation, ocppErr.Code)
}

func TestDecodeResponseEnumViolation(t *testing.T) {
	registry := testRegistry()
	_, err := registry.DecodeResponse("Ping", json.RawMessage(`{"status":"Maybe"}`), "abc")
	var ocppErr *Error
	require.ErrorAs(t, err, &ocppErr)
	assert.Equal(t, PropertyConstraintViolation, ocppErr.Code)
}

func TestDecodeResponseOk(t *testing.T) {
	registry := testRegistry()
	response, err := registry.DecodeResponse("Ping", json.RawMessage(`{"status":"Accepted"}`), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", response.(*pingResponse).Status)
}
