package simulator

import (
	"math"
	"math/rand"
	"sync"
)

const nominalVoltage = 230.0

// taperFloor keeps the accepted current strictly positive until the battery
// is exactly full.
const taperFloor = 0.05

// Car is the live battery simulation attached to one connector. Every tick it
// turns the offered current into the current the car actually draws, limited
// by the onboard charger and the SoC taper.
type Car struct {
	Profile         *Profile
	EffectivePhases int

	mu               sync.Mutex
	soc              float64
	offeredCurrentA  float64
	actualCurrentA   float64
	energyDeliveredW float64 // Wh

	// margin models the gap between pilot signal and actual draw, fixed per car
	margin float64
}

// NewCar attaches a car to a charger. The effective phase count is the lesser
// of what the car and the charger support.
func NewCar(profile *Profile, chargerPhases int, initialSoc float64) *Car {
	phases := profile.Phases
	if chargerPhases < phases {
		phases = chargerPhases
	}
	if phases < 1 {
		phases = 1
	}
	return &Car{
		Profile:         profile,
		EffectivePhases: phases,
		soc:             clamp01(initialSoc),
		margin:          0.5 + rand.Float64(),
	}
}

// TickResult is what one simulation step produced.
type TickResult struct {
	CurrentA          float64
	PowerW            float64
	EnergyIncrementWh float64
	Soc               float64
}

// Tick advances the simulation by intervalSeconds at the currently offered
// current and returns the resulting draw.
func (c *Car) Tick(intervalSeconds float64) TickResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.soc >= 1.0 {
		c.actualCurrentA = 0
		return TickResult{Soc: c.soc}
	}

	profile := c.Profile
	carMax := math.Min(profile.MaxAcCurrentA, profile.OnboardChargerKw*1000/(nominalVoltage*float64(profile.Phases)))

	taper := 1.0
	if c.soc >= profile.TaperStartSoc {
		progress := (c.soc - profile.TaperStartSoc) / (profile.TaperEndSoc - profile.TaperStartSoc)
		progress = math.Min(math.Max(progress, 0), 1)
		if profile.TaperCurve == TaperExponential {
			taper = math.Exp(-3 * progress)
		} else {
			taper = 1 - progress
		}
		if taper < taperFloor {
			taper = taperFloor
		}
	}

	offered := math.Max(0, c.offeredCurrentA-c.margin)
	draw := math.Min(carMax*taper, offered)
	draw = math.Max(0, draw+(rand.Float64()*0.4-0.2))
	draw = math.Round(draw*10) / 10

	powerW := nominalVoltage * draw * float64(c.EffectivePhases)
	energyWh := powerW * intervalSeconds / 3600
	c.energyDeliveredW += energyWh
	c.soc += energyWh / (profile.BatteryCapacityKwh * 1000)

	if c.soc >= 1.0 {
		c.soc = 1.0
		c.actualCurrentA = 0
	} else {
		c.actualCurrentA = draw
	}

	return TickResult{
		CurrentA:          draw,
		PowerW:            powerW,
		EnergyIncrementWh: energyWh,
		Soc:               c.soc,
	}
}

func (c *Car) SetOfferedCurrent(amps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offeredCurrentA = amps
}

func (c *Car) Soc() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.soc
}

func (c *Car) ActualCurrent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actualCurrentA
}

func (c *Car) EnergyDeliveredWh() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energyDeliveredW
}

// Status is the externally visible snapshot of the simulation.
type Status struct {
	ProfileId       string  `json:"profileId"`
	Soc             float64 `json:"soc"`
	ActualCurrentA  float64 `json:"actualCurrentA"`
	OfferedCurrentA float64 `json:"offeredCurrentA"`
	EffectivePhases int     `json:"effectivePhases"`
	EnergyWh        float64 `json:"energyDeliveredWh"`
}

func (c *Car) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ProfileId:       c.Profile.Id,
		Soc:             c.soc,
		ActualCurrentA:  c.actualCurrentA,
		OfferedCurrentA: c.offeredCurrentA,
		EffectivePhases: c.EffectivePhases,
		EnergyWh:        c.energyDeliveredW,
	}
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
