package chargepoint

import (
	"fmt"

	"vcpsim/internal"
	"vcpsim/ocpp/core"
	"vcpsim/store"
	"vcpsim/types"
)

// ChargePoint is one virtual station: its identity, its connectors, its
// transaction bookkeeping and the session that speaks for it.
type ChargePoint struct {
	Config        ChargerConfig
	Session       *Session
	Transactions  *TransactionManager
	Configuration *Configuration
	Auth          *store.AuthStore

	logger     internal.LogHandler
	connectors []*Connector

	// hooks set by the fleet manager before connecting
	OnRemoteStart func(connectorId int, idTag string)
	OnRemoteStop  func(transactionId int)
}

func NewChargePoint(config ChargerConfig, endpoint string, version types.ProtocolVersion, logger internal.LogHandler) (*ChargePoint, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	cp := &ChargePoint{
		Config:        config,
		Transactions:  NewTransactionManager(),
		Configuration: NewConfiguration(config),
		logger:        logger,
	}
	cp.connectors = make([]*Connector, config.NumConnectors)
	for i := range cp.connectors {
		cp.connectors[i] = NewConnector(i + 1)
	}
	cp.Session = NewSession(endpoint, config.CpId, version, NewDispatcher(version), logger)
	cp.Session.point = cp
	return cp, nil
}

// SetEndpoint replaces the central system URL for the next Connect.
func (cp *ChargePoint) SetEndpoint(endpoint string) {
	version := cp.Session.version
	exitOnClose := cp.Session.ExitOnClose
	onClose := cp.Session.OnClose
	cp.Session = NewSession(endpoint, cp.Config.CpId, version, NewDispatcher(version), cp.logger)
	cp.Session.point = cp
	cp.Session.ExitOnClose = exitOnClose
	cp.Session.OnClose = onClose
}

func (cp *ChargePoint) Connector(id int) (*Connector, error) {
	if id < 1 || id > len(cp.connectors) {
		return nil, fmt.Errorf("no connector %d on %s", id, cp.Config.CpId)
	}
	return cp.connectors[id-1], nil
}

func (cp *ChargePoint) Connectors() []*Connector {
	return cp.connectors
}

func (cp *ChargePoint) ConnectorViews() []View {
	views := make([]View, len(cp.connectors))
	for i, c := range cp.connectors {
		views[i] = c.Snapshot()
	}
	return views
}

// SetConnectorStatus commits the transition and notifies the central system
// when the session is up. Every change emits, repeated statuses included.
func (cp *ChargePoint) SetConnectorStatus(connectorId int, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) error {
	connector, err := cp.Connector(connectorId)
	if err != nil {
		return err
	}
	connector.SetStatus(status, errorCode)
	cp.logger.FeatureEvent(core.StatusNotificationFeatureName, cp.Config.CpId,
		fmt.Sprintf("connector %d -> %s", connectorId, status))
	cp.NotifyStatus(connectorId)
	return nil
}

func (cp *ChargePoint) onSessionClosed() {
	cp.Transactions.StopAll()
}
