package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *Profile {
	p, ok := FindProfile("1p-32a")
	if !ok {
		panic("missing built-in profile")
	}
	return p
}

func TestNewCarClampsPhasesAndSoc(t *testing.T) {
	medium, _ := FindProfile("generic-medium")
	car := NewCar(medium, 1, 1.7)
	assert.Equal(t, 1, car.EffectivePhases, "3-phase car on 1-phase charger")
	assert.Equal(t, 1.0, car.Soc())

	car = NewCar(medium, 3, -0.5)
	assert.Equal(t, 3, car.EffectivePhases)
	assert.Equal(t, 0.0, car.Soc())
}

func TestCarMarginRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		car := NewCar(testProfile(), 1, 0.5)
		assert.GreaterOrEqual(t, car.margin, 0.5)
		assert.Less(t, car.margin, 1.5)
	}
}

func TestTickFullBatteryDrawsNothing(t *testing.T) {
	car := NewCar(testProfile(), 1, 1.0)
	car.SetOfferedCurrent(32)
	result := car.Tick(15)
	assert.Zero(t, result.CurrentA)
	assert.Zero(t, result.PowerW)
	assert.Zero(t, result.EnergyIncrementWh)
	assert.Equal(t, 1.0, result.Soc)
	assert.Zero(t, car.ActualCurrent())
}

func TestTickTapersNearFull(t *testing.T) {
	// 1p-32a tapers linearly from soc 0.85; at 0.98 the accepted current is
	// well below the 32 A offer
	car := NewCar(testProfile(), 1, 0.98)
	car.SetOfferedCurrent(32)
	result := car.Tick(15)
	assert.Less(t, result.CurrentA, 32.0)
	assert.Greater(t, result.CurrentA, 0.0)
}

func TestTickRespectsOnboardChargerLimit(t *testing.T) {
	// 7.4 kW onboard charger at 230 V single phase accepts ~32 A, but the
	// generic-medium 11 kW charger on 3 phases accepts ~15.9 A per phase
	medium, _ := FindProfile("generic-medium")
	car := NewCar(medium, 3, 0.2)
	car.SetOfferedCurrent(32)
	result := car.Tick(15)
	assert.LessOrEqual(t, result.CurrentA, 16.0+0.3, "onboard charger cap plus jitter")
}

func TestTickRespectsOfferedCurrent(t *testing.T) {
	car := NewCar(testProfile(), 1, 0.2)
	car.SetOfferedCurrent(10)
	result := car.Tick(15)
	// margin at least 0.5 below the offer, jitter at most +0.2
	assert.LessOrEqual(t, result.CurrentA, 10.0)
}

func TestTickZeroOffer(t *testing.T) {
	car := NewCar(testProfile(), 1, 0.5)
	result := car.Tick(15)
	assert.LessOrEqual(t, result.CurrentA, 0.2, "only jitter above zero offer")
	assert.GreaterOrEqual(t, result.CurrentA, 0.0)
}

func TestSocMonotonicAndConverges(t *testing.T) {
	car := NewCar(testProfile(), 1, 0.97)
	car.SetOfferedCurrent(32)

	previous := car.Soc()
	// one simulated hour per tick drives a 40 kWh pack to full quickly
	for i := 0; i < 500; i++ {
		result := car.Tick(3600)
		require.GreaterOrEqual(t, result.Soc, previous, "soc never decreases")
		previous = result.Soc
		if result.Soc >= 1.0 {
			break
		}
	}
	assert.Equal(t, 1.0, car.Soc(), "soc converges to full")
	assert.Zero(t, car.ActualCurrent(), "current drops to zero at full")
}

func TestEnergyAccumulates(t *testing.T) {
	car := NewCar(testProfile(), 1, 0.2)
	car.SetOfferedCurrent(16)
	previous := 0.0
	for i := 0; i < 10; i++ {
		car.Tick(15)
		total := car.EnergyDeliveredWh()
		assert.GreaterOrEqual(t, total, previous)
		previous = total
	}
	assert.Greater(t, previous, 0.0)
}
