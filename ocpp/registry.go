package ocpp

import "encoding/json"

// Direction of a registered action relative to the charge point.
type Direction int

const (
	// Incoming actions are initiated by the central system.
	Incoming Direction = iota
	// Outgoing actions are initiated by the charge point.
	Outgoing
)

// Descriptor binds an action name to factories for its request and response
// payloads. Handlers are attached one level up, where the session lives.
type Descriptor struct {
	Action      string
	Direction   Direction
	NewRequest  func() Request
	NewResponse func() Response
}

// Registry holds the message descriptors for one protocol version, split by
// initiating side.
type Registry struct {
	incoming map[string]*Descriptor
	outgoing map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		incoming: make(map[string]*Descriptor),
		outgoing: make(map[string]*Descriptor),
	}
}

func (r *Registry) Register(d *Descriptor) {
	if d.Direction == Incoming {
		r.incoming[d.Action] = d
	} else {
		r.outgoing[d.Action] = d
	}
}

func (r *Registry) IncomingDescriptor(action string) (*Descriptor, bool) {
	d, ok := r.incoming[action]
	return d, ok
}

func (r *Registry) OutgoingDescriptor(action string) (*Descriptor, bool) {
	d, ok := r.outgoing[action]
	return d, ok
}

// DecodeRequest decodes and validates the payload of an inbound Call against
// the Incoming descriptor for its action.
func (r *Registry) DecodeRequest(frame *Frame) (Request, error) {
	descriptor, ok := r.incoming[frame.Action]
	if !ok {
		return nil, NewError(NotImplemented, "unsupported action: "+frame.Action, frame.UniqueId)
	}
	request := descriptor.NewRequest()
	if err := decodePayload(frame.Payload, request, frame.UniqueId); err != nil {
		return nil, err
	}
	return request, nil
}

// DecodeResponse decodes and validates the payload of an inbound CallResult
// against the Outgoing descriptor of the action it answers.
func (r *Registry) DecodeResponse(action string, payload json.RawMessage, uniqueId string) (Response, error) {
	descriptor, ok := r.outgoing[action]
	if !ok {
		return nil, NewError(NotImplemented, "no outgoing descriptor for action: "+action, uniqueId)
	}
	response := descriptor.NewResponse()
	if err := decodePayload(payload, response, uniqueId); err != nil {
		return nil, err
	}
	return response, nil
}
