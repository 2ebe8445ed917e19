package fleet

import (
	"fmt"

	"vcpsim/ocpp/core"
)

// BulkResult counts per-charger outcomes of a bulk operation.
type BulkResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *BulkResult) record(cpId string, err error) {
	if err != nil {
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", cpId, err))
		return
	}
	r.Success++
}

func (m *Manager) BulkSetConnectorStatus(cpIds []string, connectorId int, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) BulkResult {
	result := BulkResult{}
	for _, cpId := range cpIds {
		result.record(cpId, m.SetConnectorStatus(cpId, connectorId, status, errorCode))
	}
	return result
}

func (m *Manager) BulkSetChargingCurrent(cpIds []string, connectorId int, amps float64) BulkResult {
	result := BulkResult{}
	for _, cpId := range cpIds {
		result.record(cpId, m.SetChargingCurrent(cpId, connectorId, amps))
	}
	return result
}

// BulkChangeConfiguration applies a configuration change to each charger's
// local key table, the same path a ChangeConfiguration from the central
// system takes.
func (m *Manager) BulkChangeConfiguration(cpIds []string, key, value string) BulkResult {
	result := BulkResult{}
	for _, cpId := range cpIds {
		mc, err := m.get(cpId)
		if err != nil {
			result.record(cpId, err)
			continue
		}
		status := mc.Point.Configuration.Set(key, value)
		if status != core.ConfigurationStatusAccepted {
			result.record(cpId, fmt.Errorf("%s", status))
			continue
		}
		result.record(cpId, nil)
	}
	return result
}
