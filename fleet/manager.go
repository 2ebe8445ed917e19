package fleet

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vcpsim/chargepoint"
	"vcpsim/config"
	"vcpsim/internal"
	"vcpsim/metrics/counters"
	"vcpsim/ocpp/core"
	"vcpsim/simulator"
	"vcpsim/store"
	"vcpsim/types"
)

var (
	ErrNotFound        = errors.New("charger not found")
	ErrExists          = errors.New("charger already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

const defaultHeartbeatInterval = 300

// ManagedCharger is one roster entry with its runtime state.
type ManagedCharger struct {
	Point     *chargepoint.ChargePoint
	Connected bool

	meterStop     chan struct{}
	heartbeatStop chan struct{}
}

// Manager owns the fleet: roster persistence, session lifecycle and the
// per-charger meter loop. All admin commands go through here.
type Manager struct {
	mu       sync.Mutex
	chargers map[string]*ManagedCharger

	wsURL      string
	rosterPath string
	cacheDir   string
	logger     internal.LogHandler

	// orchestration timings; tests shorten them
	connectPause   time.Duration
	startTxDelay   time.Duration
	pollInterval   time.Duration
	pollTries      int
	suspendedDelay func() time.Duration
	meterInterval  time.Duration
}

func NewManager(conf *config.Config, logger internal.LogHandler) *Manager {
	m := &Manager{
		chargers:     make(map[string]*ManagedCharger),
		wsURL:        conf.WsURL,
		rosterPath:   conf.RosterFile,
		cacheDir:     conf.CacheDir,
		logger:       logger,
		connectPause: 100 * time.Millisecond,
		startTxDelay: 500 * time.Millisecond,
		pollInterval: 200 * time.Millisecond,
		pollTries:    50,
		suspendedDelay: func() time.Duration {
			return 2*time.Second + time.Duration(rand.Int63n(int64(time.Second)))
		},
		meterInterval: 15 * time.Second,
	}
	configs, err := loadRoster(m.rosterPath)
	if err != nil {
		logger.Error("roster load failed, starting empty", err)
	}
	for _, cfg := range configs {
		if addErr := m.add(cfg, false); addErr != nil {
			logger.Error(fmt.Sprintf("roster entry %s skipped", cfg.CpId), addErr)
		}
	}
	return m
}

// WsURL returns the central system endpoint used for new connections.
func (m *Manager) WsURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsURL
}

func (m *Manager) SetWsURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
		return fmt.Errorf("%w: endpoint must be a ws:// or wss:// URL", ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wsURL = raw
	return nil
}

// Add registers a charger and persists the roster.
func (m *Manager) Add(cfg chargepoint.ChargerConfig) error {
	return m.add(cfg, true)
}

func (m *Manager) add(cfg chargepoint.ChargerConfig, persist bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chargers[cfg.CpId]; ok {
		return fmt.Errorf("%w: %s", ErrExists, cfg.CpId)
	}
	point, err := chargepoint.NewChargePoint(cfg, m.wsURL, types.OcppV16, m.logger)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	if m.cacheDir != "" {
		auth, storeErr := store.Open(m.cacheDir, cfg.CpId)
		if storeErr != nil {
			m.logger.Error(fmt.Sprintf("auth cache for %s disabled", cfg.CpId), storeErr)
		} else {
			point.Auth = auth
		}
	}
	mc := &ManagedCharger{Point: point}
	m.bindRemoteHooks(mc)
	m.chargers[cfg.CpId] = mc
	counters.ObserveFleet(len(m.chargers))
	if persist {
		m.persistLocked()
	}
	return nil
}

// bindRemoteHooks routes RemoteStart/RemoteStop requests from the central
// system into the same flows the admin interface uses.
func (m *Manager) bindRemoteHooks(mc *ManagedCharger) {
	cpId := mc.Point.Config.CpId
	mc.Point.OnRemoteStart = func(connectorId int, idTag string) {
		if err := m.StartTransaction(cpId, connectorId, idTag); err != nil {
			m.logger.Error(fmt.Sprintf("[%s] remote start connector %d", cpId, connectorId), err)
		}
	}
	mc.Point.OnRemoteStop = func(transactionId int) {
		connectorId, found := 0, false
		for _, connector := range mc.Point.Connectors() {
			if id, ok := connector.TransactionId(); ok && id == transactionId {
				connectorId, found = connector.Id, true
				break
			}
		}
		if !found {
			m.logger.Warn(fmt.Sprintf("[%s] remote stop for unknown transaction %d", cpId, transactionId))
			return
		}
		if err := m.StopTransaction(cpId, connectorId, core.ReasonRemote); err != nil {
			m.logger.Error(fmt.Sprintf("[%s] remote stop connector %d", cpId, connectorId), err)
		}
	}
}

// Remove stops the charger's timers and drops it from the roster. It does not
// force-close an open socket; Disconnect does that.
func (m *Manager) Remove(cpId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.chargers[cpId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cpId)
	}
	stopLoop(&mc.meterStop)
	stopLoop(&mc.heartbeatStop)
	if mc.Point.Auth != nil {
		_ = mc.Point.Auth.Close()
	}
	delete(m.chargers, cpId)
	counters.ObserveFleet(len(m.chargers))
	m.persistLocked()
	return nil
}

func (m *Manager) get(cpId string) (*ManagedCharger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.chargers[cpId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cpId)
	}
	return mc, nil
}

// ChargerView is the admin-facing snapshot of one charger.
type ChargerView struct {
	CpId       string                    `json:"cpId"`
	Config     chargepoint.ChargerConfig `json:"config"`
	Connected  bool                      `json:"connected"`
	Connectors []chargepoint.View        `json:"connectors"`
}

func (m *Manager) Get(cpId string) (ChargerView, error) {
	mc, err := m.get(cpId)
	if err != nil {
		return ChargerView{}, err
	}
	return snapshot(mc), nil
}

func (m *Manager) List() []ChargerView {
	m.mu.Lock()
	ids := make([]*ManagedCharger, 0, len(m.chargers))
	for _, mc := range m.chargers {
		ids = append(ids, mc)
	}
	m.mu.Unlock()
	views := make([]ChargerView, 0, len(ids))
	for _, mc := range ids {
		views = append(views, snapshot(mc))
	}
	sortViews(views)
	return views
}

func snapshot(mc *ManagedCharger) ChargerView {
	return ChargerView{
		CpId:       mc.Point.Config.CpId,
		Config:     mc.Point.Config,
		Connected:  mc.Connected,
		Connectors: mc.Point.ConnectorViews(),
	}
}

// Connect dials the central system, boots, notifies all connector statuses
// and starts the meter loop.
func (m *Manager) Connect(cpId string) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	if mc.Connected {
		return nil
	}
	endpoint := m.WsURL()
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
		return fmt.Errorf("%w: endpoint must be a ws:// or wss:// URL", ErrInvalidArgument)
	}
	point := mc.Point
	if point.Session.State() != chargepoint.SessionCreated ||
		point.Session.Endpoint() != strings.TrimSuffix(endpoint, "/") {
		point.SetEndpoint(endpoint)
	}
	point.Session.ExitOnClose = false
	if err = point.Session.Connect(); err != nil {
		return err
	}
	time.Sleep(m.connectPause)

	boot, err := point.SendBootNotification()
	if err != nil {
		point.Session.Close()
		return fmt.Errorf("boot notification failed: %w", err)
	}
	interval := boot.Interval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	if boot.Status != core.RegistrationStatusAccepted {
		m.logger.Warn(fmt.Sprintf("[%s] registration %s", cpId, boot.Status))
	}

	m.mu.Lock()
	mc.Connected = true
	m.mu.Unlock()
	point.NotifyStatus(0)
	for _, connector := range point.Connectors() {
		point.NotifyStatus(connector.Id)
	}

	mc.heartbeatStop = make(chan struct{})
	go m.runHeartbeatLoop(mc, time.Duration(interval)*time.Second)
	mc.meterStop = make(chan struct{})
	go m.runMeterLoop(mc)

	m.observeConnected()
	return nil
}

// Disconnect stops the loops and closes the session.
func (m *Manager) Disconnect(cpId string) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	stopLoop(&mc.meterStop)
	stopLoop(&mc.heartbeatStop)
	mc.Point.Session.Close()
	m.mu.Lock()
	mc.Connected = false
	m.mu.Unlock()
	m.observeConnected()
	return nil
}

// ConnectResult aggregates a best-effort bulk connect.
type ConnectResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ConnectAll connects every roster entry sequentially, best effort.
func (m *Manager) ConnectAll() ConnectResult {
	result := ConnectResult{}
	for _, view := range m.List() {
		if err := m.Connect(view.CpId); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", view.CpId, err))
			continue
		}
		result.Success++
	}
	return result
}

func (m *Manager) SetConnectorStatus(cpId string, connectorId int, status core.ChargePointStatus, errorCode core.ChargePointErrorCode) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	return mc.Point.SetConnectorStatus(connectorId, status, errorCode)
}

func (m *Manager) SetChargingCurrent(cpId string, connectorId int, amps float64) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	if amps < 0 {
		return fmt.Errorf("%w: negative current", ErrInvalidArgument)
	}
	connector, err := mc.Point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	connector.SetOfferedCurrent(amps, mc.Point.Config.Phases)
	return nil
}

// SetTransactionId binds or clears a connector's transaction directly,
// bypassing the usual flow. Intended for test setups.
func (m *Manager) SetTransactionId(cpId string, connectorId int, transactionId *int) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	connector, err := mc.Point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	if transactionId == nil {
		connector.ClearTransaction()
	} else {
		connector.BindTransaction(*transactionId)
	}
	return nil
}

func (m *Manager) ResetEnergy(cpId string, connectorId int) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	connector, err := mc.Point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	connector.ResetEnergy()
	return nil
}

// StartTransaction runs the authorize/start sequence. The transaction id
// assignment is awaited in the background; the status flow continues from
// there once the central system answers.
func (m *Manager) StartTransaction(cpId string, connectorId int, idTag string) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	point := mc.Point
	connector, err := point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	if id, ok := connector.TransactionId(); ok {
		return fmt.Errorf("%w: transaction %d already active on connector %d", ErrExists, id, connectorId)
	}
	if idTag == "" {
		idTag = strings.ToUpper(uuid.New().String()[:8])
	}

	auth, err := point.Authorize(idTag)
	if err != nil {
		return fmt.Errorf("authorize failed: %w", err)
	}
	if auth.IdTagInfo != nil && auth.IdTagInfo.Status != types.AuthorizationStatusAccepted {
		m.logger.Warn(fmt.Sprintf("[%s] idTag %s authorization: %s", cpId, idTag, auth.IdTagInfo.Status))
	}

	time.Sleep(m.startTxDelay)
	if err = point.SendStartTransaction(connectorId, idTag); err != nil {
		return err
	}
	if err = point.SetConnectorStatus(connectorId, core.ChargePointStatusPreparing, core.NoError); err != nil {
		return err
	}
	go m.awaitTransactionId(mc, connectorId)
	return nil
}

// awaitTransactionId polls the transaction manager for the id the response
// handler registered, binds it to the connector, and takes over metering.
// A poll timeout is logged and left alone: a late answer still registers with
// the transaction manager so the central system's view stays consistent.
func (m *Manager) awaitTransactionId(mc *ManagedCharger, connectorId int) {
	point := mc.Point
	connector, err := point.Connector(connectorId)
	if err != nil {
		return
	}
	for i := 0; i < m.pollTries; i++ {
		tx, ok := point.Transactions.FindByConnector(connectorId)
		if !ok {
			time.Sleep(m.pollInterval)
			continue
		}
		connector.BindTransaction(tx.Id)
		// the fleet meter loop takes over from the built-in timer
		point.Transactions.Stop(tx.Id)
		m.observeTransactions()
		if connector.Car() != nil {
			_ = point.SetConnectorStatus(connectorId, core.ChargePointStatusSuspendedEV, core.NoError)
			time.Sleep(m.suspendedDelay())
			_ = point.SetConnectorStatus(connectorId, core.ChargePointStatusCharging, core.NoError)
		}
		return
	}
	m.logger.Warn(fmt.Sprintf("[%s] no transaction id for connector %d within poll window",
		point.Config.CpId, connectorId))
}

func (m *Manager) StopTransaction(cpId string, connectorId int, reason core.Reason) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	point := mc.Point
	connector, err := point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	transactionId, ok := connector.TransactionId()
	if !ok {
		return fmt.Errorf("%w: no active transaction on connector %d", ErrNotFound, connectorId)
	}
	if reason == "" {
		reason = core.ReasonLocal
	}
	meterStop := int(math.Round(connector.EnergyImportedWh()))
	if err = point.SendStopTransaction(transactionId, meterStop, reason); err != nil {
		return err
	}
	point.Transactions.Stop(transactionId)
	connector.ClearTransaction()
	m.observeTransactions()
	status := core.ChargePointStatusAvailable
	if connector.Car() != nil {
		status = core.ChargePointStatusPreparing
	}
	return point.SetConnectorStatus(connectorId, status, core.NoError)
}

// PlugInCar attaches a car simulation to a connector.
func (m *Manager) PlugInCar(cpId string, connectorId int, profileId string, initialSoc float64) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	profile, ok := simulator.FindProfile(profileId)
	if !ok {
		return fmt.Errorf("%w: unknown car profile %q", ErrInvalidArgument, profileId)
	}
	if initialSoc < 0 || initialSoc > 1 {
		return fmt.Errorf("%w: initial soc %v out of range [0,1]", ErrInvalidArgument, initialSoc)
	}
	point := mc.Point
	connector, err := point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	car := simulator.NewCar(profile, point.Config.Phases, initialSoc)
	car.SetOfferedCurrent(connector.OfferedCurrent())
	connector.AttachCar(car)

	status, _ := connector.Status()
	if _, hasTx := connector.TransactionId(); hasTx && status == core.ChargePointStatusPreparing {
		go func() {
			_ = point.SetConnectorStatus(connectorId, core.ChargePointStatusSuspendedEV, core.NoError)
			time.Sleep(m.suspendedDelay())
			_ = point.SetConnectorStatus(connectorId, core.ChargePointStatusCharging, core.NoError)
		}()
		return nil
	}
	return point.SetConnectorStatus(connectorId, core.ChargePointStatusPreparing, core.NoError)
}

func (m *Manager) UnplugCar(cpId string, connectorId int) error {
	mc, err := m.get(cpId)
	if err != nil {
		return err
	}
	connector, err := mc.Point.Connector(connectorId)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	connector.DetachCar()
	status := core.ChargePointStatusAvailable
	if _, hasTx := connector.TransactionId(); hasTx {
		status = core.ChargePointStatusPreparing
	}
	return mc.Point.SetConnectorStatus(connectorId, status, core.NoError)
}

func (m *Manager) CarStatus(cpId string, connectorId int) (*simulator.Status, error) {
	mc, err := m.get(cpId)
	if err != nil {
		return nil, err
	}
	connector, err := mc.Point.Connector(connectorId)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err)
	}
	car := connector.Car()
	if car == nil {
		return nil, fmt.Errorf("%w: no car on connector %d", ErrNotFound, connectorId)
	}
	status := car.Snapshot()
	return &status, nil
}

// OnSessionClose installs a boundary hook fired when the charger's session
// closes. The single-charger command uses it to terminate the process; the
// session itself never exits anything.
func (m *Manager) OnSessionClose(cpId string, fn func(code int, reason string)) {
	mc, err := m.get(cpId)
	if err != nil {
		return
	}
	mc.Point.Session.ExitOnClose = true
	mc.Point.Session.OnClose = fn
}

func (m *Manager) runHeartbeatLoop(mc *ManagedCharger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := mc.Point.SendHeartbeat(); err != nil {
				m.logger.Warn(fmt.Sprintf("[%s] heartbeat failed: %s", mc.Point.Config.CpId, err))
			}
		case <-mc.heartbeatStop:
			return
		}
	}
}

// runMeterLoop samples every charging connector on the fleet interval and
// emits MeterValues with the full per-phase electrical model.
func (m *Manager) runMeterLoop(mc *ManagedCharger) {
	ticker := time.NewTicker(m.meterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sampleCharger(mc)
		case <-mc.meterStop:
			return
		}
	}
}

func (m *Manager) sampleCharger(mc *ManagedCharger) {
	point := mc.Point
	intervalSeconds := m.meterInterval.Seconds()
	for _, connector := range point.Connectors() {
		status, _ := connector.Status()
		offered := connector.OfferedCurrent()
		if status != core.ChargePointStatusCharging || offered <= 0 {
			continue
		}
		reading := simulator.TakeReading(offered, point.Config.Phases, connector.Car(), intervalSeconds)
		total := connector.AddEnergy(reading.EnergyIncrementWh)
		connector.SetReportedPower(reading.PowerW)
		counters.AddEnergy(reading.EnergyIncrementWh)

		var transactionId *int
		if id, ok := connector.TransactionId(); ok {
			transactionId = &id
		}
		value := simulator.BuildMeterValue(time.Now(), reading, total, offered)
		if err := point.SendMeterValues(connector.Id, transactionId, []types.MeterValue{value}); err != nil {
			m.logger.Warn(fmt.Sprintf("[%s] meter values failed: %s", point.Config.CpId, err))
		}
		if reading.CarFull {
			_ = point.SetConnectorStatus(connector.Id, core.ChargePointStatusSuspendedEV, core.NoError)
		}
	}
}

func (m *Manager) observeConnected() {
	m.mu.Lock()
	connected := 0
	for _, mc := range m.chargers {
		if mc.Connected {
			connected++
		}
	}
	m.mu.Unlock()
	counters.ObserveConnected(connected)
}

func (m *Manager) observeTransactions() {
	m.mu.Lock()
	active := 0
	for _, mc := range m.chargers {
		for _, connector := range mc.Point.Connectors() {
			if _, ok := connector.TransactionId(); ok {
				active++
			}
		}
	}
	m.mu.Unlock()
	counters.ObserveTransactions(active)
}

func stopLoop(ch *chan struct{}) {
	if *ch != nil {
		close(*ch)
		*ch = nil
	}
}
