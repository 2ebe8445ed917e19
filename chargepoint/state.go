package chargepoint

import (
	"fmt"
	"sync"

	"vcpsim/ocpp/core"
	"vcpsim/simulator"
)

// ChargerConfig is the identity and capabilities of one virtual charger.
type ChargerConfig struct {
	CpId              string `json:"cpId" yaml:"cp_id"`
	Vendor            string `json:"vendor" yaml:"vendor"`
	Model             string `json:"model" yaml:"model"`
	SerialNumber      string `json:"serialNumber,omitempty" yaml:"serial_number"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty" yaml:"firmware_version"`
	NumConnectors     int    `json:"numConnectors" yaml:"num_connectors"`
	Phases            int    `json:"phases" yaml:"phases"`
	MeterType         string `json:"meterType,omitempty" yaml:"meter_type"`
	MeterSerialNumber string `json:"meterSerialNumber,omitempty" yaml:"meter_serial_number"`
	Iccid             string `json:"iccid,omitempty" yaml:"iccid"`
	Imsi              string `json:"imsi,omitempty" yaml:"imsi"`
}

func (c *ChargerConfig) Validate() error {
	if c.CpId == "" {
		return fmt.Errorf("charge point id is required")
	}
	if c.NumConnectors < 1 || c.NumConnectors > 99 {
		return fmt.Errorf("connector count %d out of range [1,99]", c.NumConnectors)
	}
	if c.Phases != 1 && c.Phases != 3 {
		return fmt.Errorf("phase count must be 1 or 3, got %d", c.Phases)
	}
	return nil
}

// Connector is the state of one physical socket. Guarded by its own mutex:
// the session actor, the fleet meter loop and admin commands all touch it.
type Connector struct {
	Id int

	mu               sync.Mutex
	status           core.ChargePointStatus
	errorCode        core.ChargePointErrorCode
	offeredCurrentA  float64
	reportedPowerW   float64
	energyImportedWh float64
	transactionId    *int
	car              *simulator.Car
}

func NewConnector(id int) *Connector {
	return &Connector{
		Id:        id,
		status:    core.ChargePointStatusAvailable,
		errorCode: core.NoError,
	}
}

func (c *Connector) Status() (core.ChargePointStatus, core.ChargePointErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.errorCode
}

func (c *Connector) SetStatus(status core.ChargePointStatus, errorCode core.ChargePointErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	if errorCode != "" {
		c.errorCode = errorCode
	}
}

func (c *Connector) OfferedCurrent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offeredCurrentA
}

func (c *Connector) SetOfferedCurrent(amps float64, phases int) {
	c.mu.Lock()
	c.offeredCurrentA = amps
	// rough estimate, overwritten by the next meter tick
	c.reportedPowerW = 230 * amps * float64(phases)
	car := c.car
	c.mu.Unlock()
	if car != nil {
		car.SetOfferedCurrent(amps)
	}
}

func (c *Connector) SetReportedPower(watts float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reportedPowerW = watts
}

func (c *Connector) EnergyImportedWh() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energyImportedWh
}

func (c *Connector) AddEnergy(wh float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wh > 0 {
		c.energyImportedWh += wh
	}
	return c.energyImportedWh
}

func (c *Connector) ResetEnergy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.energyImportedWh = 0
}

func (c *Connector) TransactionId() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transactionId == nil {
		return 0, false
	}
	return *c.transactionId, true
}

func (c *Connector) BindTransaction(transactionId int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactionId = &transactionId
}

func (c *Connector) ClearTransaction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactionId = nil
}

func (c *Connector) Car() *simulator.Car {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.car
}

func (c *Connector) AttachCar(car *simulator.Car) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.car = car
}

func (c *Connector) DetachCar() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.car = nil
}

// View is the admin-facing snapshot of a connector.
type View struct {
	Id              int                       `json:"connectorId"`
	Status          core.ChargePointStatus    `json:"status"`
	ErrorCode       core.ChargePointErrorCode `json:"errorCode"`
	OfferedCurrentA float64                   `json:"offeredCurrentA"`
	ReportedPowerW  float64                   `json:"reportedPowerW"`
	EnergyWh        float64                   `json:"energyImportedWh"`
	TransactionId   *int                      `json:"transactionId,omitempty"`
	Car             *simulator.Status         `json:"car,omitempty"`
}

func (c *Connector) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := View{
		Id:              c.Id,
		Status:          c.status,
		ErrorCode:       c.errorCode,
		OfferedCurrentA: c.offeredCurrentA,
		ReportedPowerW:  c.reportedPowerW,
		EnergyWh:        c.energyImportedWh,
	}
	if c.transactionId != nil {
		id := *c.transactionId
		view.TransactionId = &id
	}
	if c.car != nil {
		status := c.car.Snapshot()
		view.Car = &status
	}
	return view
}
