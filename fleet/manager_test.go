package fleet

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcpsim/chargepoint"
	"vcpsim/config"
	"vcpsim/ocpp/core"
)

func chargerConfig(cpId string, connectors, phases int) chargepoint.ChargerConfig {
	return chargepoint.ChargerConfig{
		CpId:            cpId,
		Vendor:          "vcpsim",
		Model:           "VCP-1",
		SerialNumber:    "SN-" + cpId,
		FirmwareVersion: "1.0.0",
		NumConnectors:   connectors,
		Phases:          phases,
	}
}

func TestAddRemoveAndPersist(t *testing.T) {
	conf := testManagerConfig(t, "ws://csms.example/v1")
	m := NewManager(conf, testLogger())

	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	assert.ErrorIs(t, m.Add(chargerConfig("CP-A", 1, 1)), ErrExists)

	data, err := os.ReadFile(conf.RosterFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chargers"`)
	assert.Contains(t, string(data), `"CP-A"`)

	// a fresh manager on the same roster file sees the charger
	reloaded := NewManager(&config.Config{WsURL: conf.WsURL, RosterFile: conf.RosterFile}, testLogger())
	_, err = reloaded.Get("CP-A")
	assert.NoError(t, err)

	require.NoError(t, m.Remove("CP-A"))
	assert.ErrorIs(t, m.Remove("CP-A"), ErrNotFound)
	_, err = m.Get("CP-A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddRejectsInvalidConfig(t *testing.T) {
	m := newTestManager(t, "ws://csms.example/v1")
	err := m.Add(chargerConfig("CP-BAD", 0, 1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGenerateChargers(t *testing.T) {
	m := newTestManager(t, "ws://csms.example/v1")
	created, err := m.GenerateChargers("LOAD", 3, chargepoint.ChargerConfig{NumConnectors: 1, Phases: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"LOAD-001", "LOAD-002", "LOAD-003"}, created)

	view, err := m.Get("LOAD-002")
	require.NoError(t, err)
	assert.Equal(t, 3, view.Config.Phases)
	assert.NotEmpty(t, view.Config.SerialNumber, "generated identity filled in")

	_, err = m.GenerateChargers("LOAD", 1, chargepoint.ChargerConfig{})
	assert.ErrorIs(t, err, ErrExists, "collides with LOAD-001")
}

func TestSetWsURLValidatesScheme(t *testing.T) {
	m := newTestManager(t, "ws://csms.example/v1")
	assert.ErrorIs(t, m.SetWsURL("http://nope"), ErrInvalidArgument)
	require.NoError(t, m.SetWsURL("wss://csms.example/ocpp"))
	assert.Equal(t, "wss://csms.example/ocpp", m.WsURL())
}

func TestBootSequence(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))

	require.NoError(t, m.Connect("CP-A"))

	waitFor(t, 2*time.Second, func() bool { return len(csms.callsFor("CP-A")) >= 3 })
	calls := csms.callsFor("CP-A")
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, "BootNotification", calls[0].Action)
	assert.Equal(t, "StatusNotification", calls[1].Action)
	assert.Equal(t, float64(0), calls[1].Payload["connectorId"])
	assert.Equal(t, "Available", calls[1].Payload["status"])
	assert.Equal(t, "StatusNotification", calls[2].Action)
	assert.Equal(t, float64(1), calls[2].Payload["connectorId"])
	assert.Equal(t, "Available", calls[2].Payload["status"])

	view, _ := m.Get("CP-A")
	assert.True(t, view.Connected)

	require.NoError(t, m.Connect("CP-A"), "connect is idempotent while connected")
}

func connectorStatus(t *testing.T, m *Manager, cpId string, connectorId int) core.ChargePointStatus {
	t.Helper()
	view, err := m.Get(cpId)
	require.NoError(t, err)
	return view.Connectors[connectorId-1].Status
}

func TestFullTransactionFlow(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	require.NoError(t, m.Connect("CP-A"))

	require.NoError(t, m.PlugInCar("CP-A", 1, "generic-medium", 0.5))
	assert.Equal(t, core.ChargePointStatusPreparing, connectorStatus(t, m, "CP-A", 1))

	require.NoError(t, m.StartTransaction("CP-A", 1, "TAG1"))

	// Authorize precedes StartTransaction on the wire
	var authorizeAt, startAt = -1, -1
	waitFor(t, 2*time.Second, func() bool {
		for i, action := range csms.actionsFor("CP-A") {
			if action == "Authorize" && authorizeAt < 0 {
				authorizeAt = i
			}
			if action == "StartTransaction" && startAt < 0 {
				startAt = i
			}
		}
		return authorizeAt >= 0 && startAt >= 0
	})
	assert.Less(t, authorizeAt, startAt)

	for _, call := range csms.callsFor("CP-A") {
		if call.Action == "StartTransaction" {
			assert.Equal(t, "TAG1", call.Payload["idTag"])
			assert.Equal(t, float64(1), call.Payload["connectorId"])
			assert.Equal(t, float64(0), call.Payload["meterStart"])
		}
	}

	// the assigned transaction id is bound and the status walks
	// Preparing -> SuspendedEV -> Charging
	waitFor(t, 4*time.Second, func() bool {
		return connectorStatus(t, m, "CP-A", 1) == core.ChargePointStatusCharging
	})
	view, _ := m.Get("CP-A")
	require.NotNil(t, view.Connectors[0].TransactionId)
	assert.Equal(t, 42, *view.Connectors[0].TransactionId)

	require.NoError(t, m.SetChargingCurrent("CP-A", 1, 16))

	// the 15s loop (shortened here) emits MeterValues bound to the transaction
	waitFor(t, 2*time.Second, func() bool {
		for _, call := range csms.callsFor("CP-A") {
			if call.Action == "MeterValues" {
				return call.Payload["transactionId"] == float64(42)
			}
		}
		return false
	})

	require.NoError(t, m.StopTransaction("CP-A", 1, core.ReasonLocal))
	var stopCall receivedFrame
	waitFor(t, 2*time.Second, func() bool {
		for _, call := range csms.callsFor("CP-A") {
			if call.Action == "StopTransaction" {
				stopCall = call
				return true
			}
		}
		return false
	})
	assert.Equal(t, float64(42), stopCall.Payload["transactionId"])
	assert.Equal(t, "Local", stopCall.Payload["reason"])
	// car still plugged, so the connector returns to Preparing
	assert.Equal(t, core.ChargePointStatusPreparing, connectorStatus(t, m, "CP-A", 1))
	view, _ = m.Get("CP-A")
	assert.Nil(t, view.Connectors[0].TransactionId)
}

func TestStartTransactionRefusedWhenActive(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	require.NoError(t, m.Connect("CP-A"))

	require.NoError(t, m.StartTransaction("CP-A", 1, "TAG1"))
	waitFor(t, 2*time.Second, func() bool {
		view, _ := m.Get("CP-A")
		return view.Connectors[0].TransactionId != nil
	})
	assert.ErrorIs(t, m.StartTransaction("CP-A", 1, "TAG2"), ErrExists)
}

func TestUnplugDuringTransactionKeepsPreparing(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	require.NoError(t, m.Connect("CP-A"))
	require.NoError(t, m.PlugInCar("CP-A", 1, "1p-32a", 0.3))
	require.NoError(t, m.StartTransaction("CP-A", 1, "TAG1"))
	waitFor(t, 4*time.Second, func() bool {
		return connectorStatus(t, m, "CP-A", 1) == core.ChargePointStatusCharging
	})

	require.NoError(t, m.UnplugCar("CP-A", 1))
	assert.Equal(t, core.ChargePointStatusPreparing, connectorStatus(t, m, "CP-A", 1))

	_, err := m.CarStatus("CP-A", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkRollout(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	_, err := m.GenerateChargers("LOAD", 3, chargepoint.ChargerConfig{NumConnectors: 1, Phases: 3})
	require.NoError(t, err)

	result := m.ConnectAll()
	assert.Equal(t, 3, result.Success)
	assert.Equal(t, 0, result.Failed)

	for _, cpId := range []string{"LOAD-001", "LOAD-002", "LOAD-003"} {
		waitFor(t, 2*time.Second, func() bool { return len(csms.callsFor(cpId)) >= 3 })
		actions := csms.actionsFor(cpId)
		assert.Equal(t, "BootNotification", actions[0], cpId)
		assert.Contains(t, actions, "StatusNotification", cpId)
	}
}

func TestConnectAllReportsFailures(t *testing.T) {
	m := newTestManager(t, "ws://127.0.0.1:1/nowhere")
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	result := m.ConnectAll()
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 1, result.Failed)
}

func TestBulkOperations(t *testing.T) {
	m := newTestManager(t, "ws://csms.example/v1")
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	require.NoError(t, m.Add(chargerConfig("CP-B", 1, 1)))

	result := m.BulkSetChargingCurrent([]string{"CP-A", "CP-B", "CP-MISSING"}, 1, 16)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Failed)

	view, _ := m.Get("CP-A")
	assert.Equal(t, 16.0, view.Connectors[0].OfferedCurrentA)
	assert.InDelta(t, 230*16, view.Connectors[0].ReportedPowerW, 0.1)

	statusResult := m.BulkSetConnectorStatus([]string{"CP-A", "CP-B"}, 1, core.ChargePointStatusUnavailable, core.NoError)
	assert.Equal(t, 2, statusResult.Success)
	assert.Equal(t, core.ChargePointStatusUnavailable, connectorStatus(t, m, "CP-B", 1))

	cfgResult := m.BulkChangeConfiguration([]string{"CP-A", "CP-B"}, "HeartbeatInterval", "60")
	assert.Equal(t, 2, cfgResult.Success)
	cfgResult = m.BulkChangeConfiguration([]string{"CP-A"}, "NumberOfConnectors", "9")
	assert.Equal(t, 1, cfgResult.Failed, "read-only key rejected")
}

func TestSetTransactionIdAndResetEnergy(t *testing.T) {
	m := newTestManager(t, "ws://csms.example/v1")
	require.NoError(t, m.Add(chargerConfig("CP-A", 2, 1)))

	txId := 7
	require.NoError(t, m.SetTransactionId("CP-A", 2, &txId))
	view, _ := m.Get("CP-A")
	require.NotNil(t, view.Connectors[1].TransactionId)
	assert.Equal(t, 7, *view.Connectors[1].TransactionId)

	require.NoError(t, m.SetTransactionId("CP-A", 2, nil))
	view, _ = m.Get("CP-A")
	assert.Nil(t, view.Connectors[1].TransactionId)

	require.NoError(t, m.ResetEnergy("CP-A", 1))
	view, _ = m.Get("CP-A")
	assert.Zero(t, view.Connectors[0].EnergyWh)
}

func TestSocTaperSuspendsConnector(t *testing.T) {
	csms := newStubCSMS(t)
	m := newTestManager(t, csms.URL())
	require.NoError(t, m.Add(chargerConfig("CP-A", 1, 1)))
	require.NoError(t, m.Connect("CP-A"))
	require.NoError(t, m.PlugInCar("CP-A", 1, "1p-32a", 0.999999))
	require.NoError(t, m.StartTransaction("CP-A", 1, "TAG1"))
	waitFor(t, 4*time.Second, func() bool {
		return connectorStatus(t, m, "CP-A", 1) == core.ChargePointStatusCharging
	})
	require.NoError(t, m.SetChargingCurrent("CP-A", 1, 32))

	// each shortened tick simulates 0.1 s; the pack is 0.04 Wh from full,
	// so the taper drives it there and the connector suspends
	waitFor(t, 10*time.Second, func() bool {
		return connectorStatus(t, m, "CP-A", 1) == core.ChargePointStatusSuspendedEV
	})
	status, err := m.CarStatus("CP-A", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, status.Soc)
	assert.Zero(t, status.ActualCurrentA)
}
