package chargepoint

import (
	"errors"
	"fmt"

	"vcpsim/ocpp"
	"vcpsim/ocpp/core"
	"vcpsim/ocpp/firmware"
	"vcpsim/ocpp/localauth"
	"vcpsim/ocpp/remotetrigger"
	"vcpsim/ocpp/reservation"
	"vcpsim/ocpp/smartcharging"
	"vcpsim/types"
)

// IncomingHandler serves one central-system-initiated action.
type IncomingHandler func(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error)

// ResponseHandler observes the response to one charge-point-initiated action.
// It runs before the caller's awaiter is completed.
type ResponseHandler func(cp *ChargePoint, request ocpp.Request, response ocpp.Response)

// Dispatcher routes parsed frames to per-action handlers, validating payloads
// in both directions against the registry.
type Dispatcher struct {
	registry *ocpp.Registry
	incoming map[string]IncomingHandler
	response map[string]ResponseHandler
}

// NewDispatcher builds the dispatch table for a protocol version. Only 1.6
// carries handlers; 2.0.1 negotiates the subprotocol but keeps an empty
// registry until the message set lands.
func NewDispatcher(version types.ProtocolVersion) *Dispatcher {
	d := &Dispatcher{
		registry: ocpp.NewRegistry(),
		incoming: make(map[string]IncomingHandler),
		response: make(map[string]ResponseHandler),
	}
	if version == types.OcppV16 {
		d.register16()
	}
	return d
}

func (d *Dispatcher) handleIncoming(descriptor *ocpp.Descriptor, handler IncomingHandler) {
	d.registry.Register(descriptor)
	d.incoming[descriptor.Action] = handler
}

func (d *Dispatcher) handleOutgoing(descriptor *ocpp.Descriptor, handler ResponseHandler) {
	d.registry.Register(descriptor)
	if handler != nil {
		d.response[descriptor.Action] = handler
	}
}

// HandleFrame processes one inbound websocket frame on the session goroutine.
func (d *Dispatcher) HandleFrame(cp *ChargePoint, data []byte) {
	session := cp.Session
	frame, err := ocpp.ParseFrame(data)
	if err != nil {
		var ocppErr *ocpp.Error
		if errors.As(err, &ocppErr) && ocppErr.MessageId != "" {
			_ = session.RespondError(ocppErr.MessageId, ocppErr.Code, ocppErr.Description)
		}
		cp.logger.Warn(fmt.Sprintf("[%s] dropping frame: %s", cp.Config.CpId, err))
		return
	}

	switch frame.TypeId {
	case ocpp.CallTypeRequest:
		d.handleRequest(cp, frame)
	case ocpp.CallTypeResult:
		d.handleResult(cp, frame)
	case ocpp.CallTypeError:
		d.handleError(cp, frame)
	}
}

func (d *Dispatcher) handleRequest(cp *ChargePoint, frame *ocpp.Frame) {
	session := cp.Session
	request, err := d.registry.DecodeRequest(frame)
	if err != nil {
		var ocppErr *ocpp.Error
		if errors.As(err, &ocppErr) {
			_ = session.RespondError(frame.UniqueId, ocppErr.Code, ocppErr.Description)
		} else {
			_ = session.RespondError(frame.UniqueId, ocpp.InternalError, err.Error())
		}
		cp.logger.Warn(fmt.Sprintf("[%s] %s rejected: %s", cp.Config.CpId, frame.Action, err))
		return
	}

	handler := d.incoming[frame.Action]
	response, err := handler(cp, request)
	if err != nil {
		var ocppErr *ocpp.Error
		if errors.As(err, &ocppErr) {
			_ = session.RespondError(frame.UniqueId, ocppErr.Code, ocppErr.Description)
		} else {
			_ = session.RespondError(frame.UniqueId, ocpp.InternalError, err.Error())
		}
		cp.logger.Error(fmt.Sprintf("[%s] handling %s", cp.Config.CpId, frame.Action), err)
		return
	}
	cp.logger.FeatureEvent(frame.Action, cp.Config.CpId, "request handled")
	if err = session.Respond(response, frame.UniqueId); err != nil {
		cp.logger.Error(fmt.Sprintf("[%s] responding to %s", cp.Config.CpId, frame.Action), err)
	}
}

func (d *Dispatcher) handleResult(cp *ChargePoint, frame *ocpp.Frame) {
	pc, ok := cp.Session.pending.take(frame.UniqueId)
	if !ok {
		cp.logger.Warn(fmt.Sprintf("[%s] unsolicited result %s", cp.Config.CpId, frame.UniqueId))
		return
	}
	response, err := d.registry.DecodeResponse(pc.action, frame.Payload, frame.UniqueId)
	if err != nil {
		cp.logger.Warn(fmt.Sprintf("[%s] invalid response for %s: %s", cp.Config.CpId, pc.action, err))
		pc.outcome <- callOutcome{err: err}
		return
	}
	if handler := d.response[pc.action]; handler != nil {
		handler(cp, pc.request, response)
	}
	pc.outcome <- callOutcome{response: response}
}

func (d *Dispatcher) handleError(cp *ChargePoint, frame *ocpp.Frame) {
	pc, ok := cp.Session.pending.take(frame.UniqueId)
	if !ok {
		cp.logger.Warn(fmt.Sprintf("[%s] unsolicited error %s", cp.Config.CpId, frame.UniqueId))
		return
	}
	err := ocpp.NewError(frame.ErrorCode, frame.ErrorDescription, frame.UniqueId)
	cp.logger.Warn(fmt.Sprintf("[%s] call %s failed: %s", cp.Config.CpId, pc.action, err))
	pc.outcome <- callOutcome{err: err}
}

// register16 wires the complete OCPP 1.6J surface.
func (d *Dispatcher) register16() {
	// central-system-initiated
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.ResetFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.ResetRequest{} },
		NewResponse: func() ocpp.Response { return &core.ResetResponse{} },
	}, handleReset)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      remotetrigger.TriggerMessageFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &remotetrigger.TriggerMessageRequest{} },
		NewResponse: func() ocpp.Response { return &remotetrigger.TriggerMessageResponse{} },
	}, handleTriggerMessage)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.ChangeConfigurationFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.ChangeConfigurationRequest{} },
		NewResponse: func() ocpp.Response { return &core.ChangeConfigurationResponse{} },
	}, handleChangeConfiguration)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.GetConfigurationFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.GetConfigurationRequest{} },
		NewResponse: func() ocpp.Response { return &core.GetConfigurationResponse{} },
	}, handleGetConfiguration)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.ChangeAvailabilityFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.ChangeAvailabilityRequest{} },
		NewResponse: func() ocpp.Response { return &core.ChangeAvailabilityResponse{} },
	}, handleChangeAvailability)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.RemoteStartTransactionFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.RemoteStartTransactionRequest{} },
		NewResponse: func() ocpp.Response { return &core.RemoteStartTransactionResponse{} },
	}, handleRemoteStartTransaction)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.RemoteStopTransactionFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.RemoteStopTransactionRequest{} },
		NewResponse: func() ocpp.Response { return &core.RemoteStopTransactionResponse{} },
	}, handleRemoteStopTransaction)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.UnlockConnectorFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.UnlockConnectorRequest{} },
		NewResponse: func() ocpp.Response { return &core.UnlockConnectorResponse{} },
	}, handleUnlockConnector)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      core.DataTransferFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &core.DataTransferRequest{} },
		NewResponse: func() ocpp.Response { return &core.DataTransferResponse{} },
	}, handleDataTransfer)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      reservation.ReserveNowFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &reservation.ReserveNowRequest{} },
		NewResponse: func() ocpp.Response { return &reservation.ReserveNowResponse{} },
	}, handleReserveNow)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      reservation.CancelReservationFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &reservation.CancelReservationRequest{} },
		NewResponse: func() ocpp.Response { return &reservation.CancelReservationResponse{} },
	}, handleCancelReservation)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      smartcharging.SetChargingProfileFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &smartcharging.SetChargingProfileRequest{} },
		NewResponse: func() ocpp.Response { return &smartcharging.SetChargingProfileResponse{} },
	}, handleSetChargingProfile)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      smartcharging.ClearChargingProfileFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &smartcharging.ClearChargingProfileRequest{} },
		NewResponse: func() ocpp.Response { return &smartcharging.ClearChargingProfileResponse{} },
	}, handleClearChargingProfile)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      smartcharging.GetCompositeScheduleFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &smartcharging.GetCompositeScheduleRequest{} },
		NewResponse: func() ocpp.Response { return &smartcharging.GetCompositeScheduleResponse{} },
	}, handleGetCompositeSchedule)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      localauth.SendLocalListFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &localauth.SendLocalListRequest{} },
		NewResponse: func() ocpp.Response { return &localauth.SendLocalListResponse{} },
	}, handleSendLocalList)
	d.handleIncoming(&ocpp.Descriptor{
		Action:      localauth.GetLocalListVersionFeatureName,
		Direction:   ocpp.Incoming,
		NewRequest:  func() ocpp.Request { return &localauth.GetLocalListVersionRequest{} },
		NewResponse: func() ocpp.Response { return &localauth.GetLocalListVersionResponse{} },
	}, handleGetLocalListVersion)

	// charge-point-initiated
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.BootNotificationFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.BootNotificationRequest{} },
		NewResponse: func() ocpp.Response { return &core.BootNotificationResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.HeartbeatFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.HeartbeatRequest{} },
		NewResponse: func() ocpp.Response { return &core.HeartbeatResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.StatusNotificationFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.StatusNotificationRequest{} },
		NewResponse: func() ocpp.Response { return &core.StatusNotificationResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.AuthorizeFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.AuthorizeRequest{} },
		NewResponse: func() ocpp.Response { return &core.AuthorizeResponse{} },
	}, onAuthorizeResponse)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.StartTransactionFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.StartTransactionRequest{} },
		NewResponse: func() ocpp.Response { return &core.StartTransactionResponse{} },
	}, onStartTransactionResponse)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.StopTransactionFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.StopTransactionRequest{} },
		NewResponse: func() ocpp.Response { return &core.StopTransactionResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.MeterValuesFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.MeterValuesRequest{} },
		NewResponse: func() ocpp.Response { return &core.MeterValuesResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      core.DataTransferFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &core.DataTransferRequest{} },
		NewResponse: func() ocpp.Response { return &core.DataTransferResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      firmware.StatusNotificationFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &firmware.StatusNotificationRequest{} },
		NewResponse: func() ocpp.Response { return &firmware.StatusNotificationResponse{} },
	}, nil)
	d.handleOutgoing(&ocpp.Descriptor{
		Action:      firmware.DiagnosticsStatusNotificationFeatureName,
		Direction:   ocpp.Outgoing,
		NewRequest:  func() ocpp.Request { return &firmware.DiagnosticsStatusNotificationRequest{} },
		NewResponse: func() ocpp.Response { return &firmware.DiagnosticsStatusNotificationResponse{} },
	}, nil)
}
