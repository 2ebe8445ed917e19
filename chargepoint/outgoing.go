package chargepoint

import (
	"fmt"
	"math"
	"time"

	"vcpsim/metrics/counters"
	"vcpsim/ocpp"
	"vcpsim/ocpp/core"
	"vcpsim/ocpp/firmware"
	"vcpsim/types"
)

// BootRequest assembles the BootNotification payload from the charger identity.
func (cp *ChargePoint) BootRequest() *core.BootNotificationRequest {
	request := core.NewBootNotificationRequest(cp.Config.Vendor, cp.Config.Model)
	request.ChargePointSerialNumber = cp.Config.SerialNumber
	request.FirmwareVersion = cp.Config.FirmwareVersion
	request.MeterType = cp.Config.MeterType
	request.MeterSerialNumber = cp.Config.MeterSerialNumber
	request.Iccid = cp.Config.Iccid
	request.Imsi = cp.Config.Imsi
	return request
}

func (cp *ChargePoint) SendBootNotification() (*core.BootNotificationResponse, error) {
	response, err := cp.Session.Call(cp.BootRequest())
	if err != nil {
		return nil, err
	}
	return response.(*core.BootNotificationResponse), nil
}

func (cp *ChargePoint) SendHeartbeat() (*core.HeartbeatResponse, error) {
	response, err := cp.Session.Call(core.NewHeartbeatRequest())
	if err != nil {
		return nil, err
	}
	return response.(*core.HeartbeatResponse), nil
}

// NotifyStatus sends the current status of a connector (0 means the station
// itself) without waiting for the acknowledgement.
func (cp *ChargePoint) NotifyStatus(connectorId int) {
	if !cp.Session.IsOpen() {
		return
	}
	status := core.ChargePointStatusAvailable
	errorCode := core.NoError
	if connectorId > 0 {
		connector, err := cp.Connector(connectorId)
		if err != nil {
			return
		}
		status, errorCode = connector.Status()
	}
	request := core.NewStatusNotificationRequest(connectorId, status, errorCode)
	request.Timestamp = types.NewDateTime(time.Now())
	if _, err := cp.Session.Send(request); err != nil {
		cp.logger.Warn(fmt.Sprintf("[%s] status notification failed: %s", cp.Config.CpId, err))
	}
}

// Authorize asks the central system to validate an idTag and feeds the
// authorization cache through the registered response handler.
func (cp *ChargePoint) Authorize(idTag string) (*core.AuthorizeResponse, error) {
	response, err := cp.Session.Call(core.NewAuthorizeRequest(idTag))
	if err != nil {
		return nil, err
	}
	return response.(*core.AuthorizeResponse), nil
}

// SendStartTransaction fires the request without waiting: the assigned
// transaction id arrives through the response handler, which registers it
// with the transaction manager.
func (cp *ChargePoint) SendStartTransaction(connectorId int, idTag string) error {
	connector, err := cp.Connector(connectorId)
	if err != nil {
		return err
	}
	meterStart := int(math.Round(connector.EnergyImportedWh()))
	request := core.NewStartTransactionRequest(connectorId, idTag, meterStart, types.NewDateTime(time.Now()))
	_, err = cp.Session.Send(request)
	return err
}

func (cp *ChargePoint) SendStopTransaction(transactionId, meterStop int, reason core.Reason) error {
	request := core.NewStopTransactionRequest(transactionId, meterStop, types.NewDateTime(time.Now()))
	request.Reason = reason
	_, err := cp.Session.Call(request)
	return err
}

func (cp *ChargePoint) SendMeterValues(connectorId int, transactionId *int, values []types.MeterValue) error {
	request := core.NewMeterValuesRequest(connectorId, values)
	request.TransactionId = transactionId
	_, err := cp.Session.Send(request)
	return err
}

func (cp *ChargePoint) SendFirmwareStatus(status firmware.Status) {
	if _, err := cp.Session.Send(firmware.NewStatusNotificationRequest(status)); err != nil {
		cp.logger.Warn(fmt.Sprintf("[%s] firmware status failed: %s", cp.Config.CpId, err))
	}
}

func (cp *ChargePoint) SendDiagnosticsStatus(status firmware.DiagnosticsStatus) {
	if _, err := cp.Session.Send(firmware.NewDiagnosticsStatusNotificationRequest(status)); err != nil {
		cp.logger.Warn(fmt.Sprintf("[%s] diagnostics status failed: %s", cp.Config.CpId, err))
	}
}

// onAuthorizeResponse caches the verdict so a later offline authorization can
// fall back to it.
func onAuthorizeResponse(cp *ChargePoint, request ocpp.Request, response ocpp.Response) {
	req := request.(*core.AuthorizeRequest)
	res := response.(*core.AuthorizeResponse)
	if cp.Auth == nil || res.IdTagInfo == nil {
		return
	}
	if enabled, _ := cp.Configuration.Value("AuthorizationCacheEnabled"); enabled != "true" {
		return
	}
	if err := cp.Auth.CacheTagInfo(req.IdTag, res.IdTagInfo); err != nil {
		cp.logger.Error(fmt.Sprintf("[%s] caching idTag", cp.Config.CpId), err)
	}
}

// onStartTransactionResponse binds the central-system-assigned transaction id
// and starts the built-in meter timer. The fleet manager may disable that
// timer right after it discovers the id.
func onStartTransactionResponse(cp *ChargePoint, request ocpp.Request, response ocpp.Response) {
	req := request.(*core.StartTransactionRequest)
	res := response.(*core.StartTransactionResponse)
	if res.IdTagInfo != nil && res.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		cp.logger.Warn(fmt.Sprintf("[%s] start transaction for %s not authorized: %s",
			cp.Config.CpId, req.IdTag, res.IdTagInfo.Status))
		return
	}
	tx := &Transaction{
		Id:          res.TransactionId,
		IdTag:       req.IdTag,
		ConnectorId: req.ConnectorId,
		MeterStart:  req.MeterStart,
		StartedAt:   time.Now(),
	}
	cp.Transactions.Start(tx, cp.sampleMeterValues)
	counters.CountTransaction(cp.Config.CpId)
	cp.logger.FeatureEvent(core.StartTransactionFeatureName, cp.Config.CpId,
		fmt.Sprintf("transaction %d on connector %d", tx.Id, tx.ConnectorId))
}

// sampleMeterValues is the session-owned periodic sample: a single-phase
// energy and power reading from the offered current, used when the fleet
// manager's richer loop is not driving the connector.
func (cp *ChargePoint) sampleMeterValues(tx *Transaction) {
	connector, err := cp.Connector(tx.ConnectorId)
	if err != nil {
		return
	}
	offered := connector.OfferedCurrent()
	powerW := 230 * offered
	interval := cp.Transactions.Interval().Seconds()
	total := connector.AddEnergy(powerW * interval / 3600)
	connector.SetReportedPower(powerW)

	value := types.MeterValue{
		Timestamp: types.NewDateTime(time.Now()),
		SampledValue: []types.SampledValue{
			{
				Value:     fmt.Sprintf("%.3f", total/1000),
				Measurand: types.MeasurandEnergyActiveImportRegister,
				Unit:      types.UnitOfMeasureKWh,
				Context:   types.ReadingContextSamplePeriodic,
				Location:  types.LocationOutlet,
			},
			{
				Value:     fmt.Sprintf("%.1f", powerW),
				Measurand: types.MeasurandPowerActiveImport,
				Unit:      types.UnitOfMeasureW,
				Context:   types.ReadingContextSamplePeriodic,
				Location:  types.LocationOutlet,
			},
		},
	}
	id := tx.Id
	if err = cp.SendMeterValues(tx.ConnectorId, &id, []types.MeterValue{value}); err != nil {
		cp.logger.Warn(fmt.Sprintf("[%s] meter values failed: %s", cp.Config.CpId, err))
	}
}
