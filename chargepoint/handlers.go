package chargepoint

import (
	"fmt"
	"time"

	"vcpsim/ocpp"
	"vcpsim/ocpp/core"
	"vcpsim/ocpp/firmware"
	"vcpsim/ocpp/localauth"
	"vcpsim/ocpp/remotetrigger"
	"vcpsim/ocpp/reservation"
	"vcpsim/ocpp/smartcharging"
	"vcpsim/store"
	"vcpsim/types"
)

func handleReset(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ResetRequest)
	cp.logger.FeatureEvent(core.ResetFeatureName, cp.Config.CpId, fmt.Sprintf("%s reset requested", req.Type))
	// answer first, then drop the socket as a rebooting station would
	go func() {
		time.Sleep(time.Second)
		cp.Session.Close()
	}()
	return core.NewResetResponse(core.ResetStatusAccepted), nil
}

// triggerDelay keeps the triggered message behind the Accepted response on
// the wire; the response is enqueued synchronously right after the handler
// returns.
const triggerDelay = 100 * time.Millisecond

func handleTriggerMessage(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*remotetrigger.TriggerMessageRequest)
	var trigger func()
	switch req.RequestedMessage {
	case remotetrigger.MessageTriggerBootNotification:
		trigger = func() { _, _ = cp.SendBootNotification() }
	case remotetrigger.MessageTriggerHeartbeat:
		trigger = func() { _, _ = cp.SendHeartbeat() }
	case remotetrigger.MessageTriggerStatusNotification:
		trigger = func() {
			if req.ConnectorId != nil {
				cp.NotifyStatus(*req.ConnectorId)
				return
			}
			cp.NotifyStatus(0)
			for _, connector := range cp.connectors {
				cp.NotifyStatus(connector.Id)
			}
		}
	case remotetrigger.MessageTriggerFirmwareStatusNotification:
		trigger = func() { cp.SendFirmwareStatus(firmware.StatusIdle) }
	case remotetrigger.MessageTriggerDiagnosticsStatusNotification:
		trigger = func() { cp.SendDiagnosticsStatus(firmware.DiagnosticsStatusIdle) }
	default:
		return remotetrigger.NewTriggerMessageResponse(remotetrigger.TriggerMessageStatusNotImplemented), nil
	}
	go func() {
		time.Sleep(triggerDelay)
		trigger()
	}()
	return remotetrigger.NewTriggerMessageResponse(remotetrigger.TriggerMessageStatusAccepted), nil
}

func handleChangeConfiguration(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ChangeConfigurationRequest)
	status := cp.Configuration.Set(req.Key, req.Value)
	if status == core.ConfigurationStatusAccepted && req.Key == "MeterValueSampleInterval" {
		cp.Transactions.SetInterval(time.Duration(cp.Configuration.IntValue(req.Key, 60)) * time.Second)
	}
	return core.NewChangeConfigurationResponse(status), nil
}

func handleGetConfiguration(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.GetConfigurationRequest)
	known, unknown := cp.Configuration.Get(req.Key)
	return &core.GetConfigurationResponse{ConfigurationKey: known, UnknownKey: unknown}, nil
}

func handleChangeAvailability(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.ChangeAvailabilityRequest)
	status := core.ChargePointStatusAvailable
	if req.Type == core.AvailabilityTypeInoperative {
		status = core.ChargePointStatusUnavailable
	}
	if req.ConnectorId == 0 {
		for _, connector := range cp.connectors {
			_ = cp.SetConnectorStatus(connector.Id, status, core.NoError)
		}
	} else if err := cp.SetConnectorStatus(req.ConnectorId, status, core.NoError); err != nil {
		return core.NewChangeAvailabilityResponse(core.AvailabilityStatusRejected), nil
	}
	return core.NewChangeAvailabilityResponse(core.AvailabilityStatusAccepted), nil
}

func handleRemoteStartTransaction(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.RemoteStartTransactionRequest)
	connectorId := 1
	if req.ConnectorId != nil {
		connectorId = *req.ConnectorId
	}
	if _, err := cp.Connector(connectorId); err != nil {
		return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusRejected), nil
	}
	if cp.OnRemoteStart != nil {
		go cp.OnRemoteStart(connectorId, req.IdTag)
	}
	return core.NewRemoteStartTransactionResponse(types.RemoteStartStopStatusAccepted), nil
}

func handleRemoteStopTransaction(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.RemoteStopTransactionRequest)
	if cp.OnRemoteStop != nil {
		go cp.OnRemoteStop(req.TransactionId)
	}
	return core.NewRemoteStopTransactionResponse(types.RemoteStartStopStatusAccepted), nil
}

func handleUnlockConnector(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.UnlockConnectorRequest)
	if _, err := cp.Connector(req.ConnectorId); err != nil {
		return core.NewUnlockConnectorResponse(core.UnlockStatusNotSupported), nil
	}
	return core.NewUnlockConnectorResponse(core.UnlockStatusUnlocked), nil
}

func handleDataTransfer(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*core.DataTransferRequest)
	cp.logger.FeatureEvent(core.DataTransferFeatureName, cp.Config.CpId,
		fmt.Sprintf("vendor %s message %s", req.VendorId, req.MessageId))
	return core.NewDataTransferResponse(core.DataTransferStatusAccepted), nil
}

func handleReserveNow(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*reservation.ReserveNowRequest)
	if req.ConnectorId > 0 {
		if err := cp.SetConnectorStatus(req.ConnectorId, core.ChargePointStatusReserved, core.NoError); err != nil {
			return reservation.NewReserveNowResponse(reservation.ReservationStatusRejected), nil
		}
	}
	return reservation.NewReserveNowResponse(reservation.ReservationStatusAccepted), nil
}

func handleCancelReservation(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	for _, connector := range cp.connectors {
		if status, _ := connector.Status(); status == core.ChargePointStatusReserved {
			_ = cp.SetConnectorStatus(connector.Id, core.ChargePointStatusAvailable, core.NoError)
		}
	}
	return reservation.NewCancelReservationResponse(reservation.CancelReservationStatusAccepted), nil
}

func handleSetChargingProfile(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	return smartcharging.NewSetChargingProfileResponse(smartcharging.ChargingProfileStatusAccepted), nil
}

func handleClearChargingProfile(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	return smartcharging.NewClearChargingProfileResponse(smartcharging.ClearChargingProfileStatusAccepted), nil
}

func handleGetCompositeSchedule(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	return smartcharging.NewGetCompositeScheduleResponse(smartcharging.GetCompositeScheduleStatusAccepted), nil
}

func handleSendLocalList(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	req := request.(*localauth.SendLocalListRequest)
	if cp.Auth == nil {
		return localauth.NewSendLocalListResponse(localauth.UpdateStatusAccepted), nil
	}
	entries := make([]store.Entry, 0, len(req.LocalAuthorizationList))
	for _, data := range req.LocalAuthorizationList {
		entries = append(entries, store.Entry{IdTag: data.IdTag, Info: data.IdTagInfo})
	}
	full := req.UpdateType == localauth.UpdateTypeFull
	if err := cp.Auth.ApplyLocalList(req.ListVersion, full, entries); err != nil {
		cp.logger.Error(fmt.Sprintf("[%s] applying local list", cp.Config.CpId), err)
		return localauth.NewSendLocalListResponse(localauth.UpdateStatusFailed), nil
	}
	return localauth.NewSendLocalListResponse(localauth.UpdateStatusAccepted), nil
}

func handleGetLocalListVersion(cp *ChargePoint, request ocpp.Request) (ocpp.Response, error) {
	version := 0
	if cp.Auth != nil {
		version = cp.Auth.ListVersion()
	}
	return localauth.NewGetLocalListVersionResponse(version), nil
}
