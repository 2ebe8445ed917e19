package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcpsim/types"
)

func TestTakeReadingWithoutCar(t *testing.T) {
	reading := TakeReading(16, 3, nil, 15)
	assert.Equal(t, 16.0, reading.PerPhaseCurrentA)
	assert.Equal(t, 3, reading.Phases)
	require.Len(t, reading.Voltages, 3)
	for _, v := range reading.Voltages {
		// 232 - 0.15*16 = 229.6, plus half a volt of noise
		assert.InDelta(t, 229.6, v, 0.51)
	}
	assert.InDelta(t, 3*229.6*16, reading.PowerW, 30)
	assert.InDelta(t, reading.PowerW*15/3600, reading.EnergyIncrementWh, 0.001)
	assert.InDelta(t, 20, reading.BodyTemp, 1.01)
	assert.InDelta(t, 19, reading.CableTemp, 1.01)
	assert.Nil(t, reading.Soc)
	assert.False(t, reading.CarFull)
}

func TestTakeReadingWithCarUsesEffectivePhases(t *testing.T) {
	profile, _ := FindProfile("1p-32a")
	car := NewCar(profile, 3, 0.5)
	car.SetOfferedCurrent(20)
	reading := TakeReading(20, 3, car, 15)
	assert.Equal(t, 1, reading.Phases, "single-phase car on three-phase charger")
	require.NotNil(t, reading.Soc)
	assert.Greater(t, *reading.Soc, 0.5)
}

func TestTakeReadingFullCar(t *testing.T) {
	profile, _ := FindProfile("1p-32a")
	car := NewCar(profile, 1, 1.0)
	car.SetOfferedCurrent(32)
	reading := TakeReading(32, 1, car, 15)
	assert.True(t, reading.CarFull)
	assert.Zero(t, reading.PerPhaseCurrentA)
}

func sampleFor(t *testing.T, mv types.MeterValue, measurand types.Measurand, phase types.Phase) *types.SampledValue {
	t.Helper()
	for i := range mv.SampledValue {
		s := mv.SampledValue[i]
		if s.Measurand == measurand && s.Phase == phase {
			return &mv.SampledValue[i]
		}
	}
	return nil
}

func TestBuildMeterValuePhaseDeterminism(t *testing.T) {
	reading := TakeReading(16, 1, nil, 15)
	mv := BuildMeterValue(time.Now(), reading, 1234, 16)

	assert.NotNil(t, sampleFor(t, mv, types.MeasurandVoltage, types.PhaseL1))
	assert.NotNil(t, sampleFor(t, mv, types.MeasurandCurrentImport, types.PhaseL1))
	assert.Nil(t, sampleFor(t, mv, types.MeasurandVoltage, types.PhaseL2), "L2 omitted on 1-phase")
	assert.Nil(t, sampleFor(t, mv, types.MeasurandCurrentImport, types.PhaseL3), "L3 omitted on 1-phase")
}

func TestBuildMeterValueThreePhase(t *testing.T) {
	reading := TakeReading(16, 3, nil, 15)
	mv := BuildMeterValue(time.Now(), reading, 500, 16)
	for _, phase := range []types.Phase{types.PhaseL1, types.PhaseL2, types.PhaseL3} {
		assert.NotNil(t, sampleFor(t, mv, types.MeasurandVoltage, phase))
		assert.NotNil(t, sampleFor(t, mv, types.MeasurandCurrentImport, phase))
	}
}

func TestBuildMeterValueSamples(t *testing.T) {
	reading := TakeReading(10, 1, nil, 15)
	mv := BuildMeterValue(time.Now(), reading, 2500, 10)

	energy := sampleFor(t, mv, types.MeasurandEnergyActiveImportRegister, "")
	require.NotNil(t, energy)
	assert.Equal(t, "2.500", energy.Value)
	assert.Equal(t, types.UnitOfMeasureKWh, energy.Unit)

	offered := sampleFor(t, mv, types.MeasurandCurrentOffered, "")
	require.NotNil(t, offered)
	assert.Equal(t, "10.0", offered.Value)

	power := sampleFor(t, mv, types.MeasurandPowerActiveImport, "")
	require.NotNil(t, power)

	assert.Nil(t, sampleFor(t, mv, types.MeasurandSoC, ""), "no SoC without a car")
	for _, s := range mv.SampledValue {
		assert.Equal(t, types.ReadingContextSamplePeriodic, s.Context)
	}
}

func TestBuildMeterValueSocSample(t *testing.T) {
	profile, _ := FindProfile("generic-medium")
	car := NewCar(profile, 3, 0.42)
	car.SetOfferedCurrent(16)
	reading := TakeReading(16, 3, car, 15)
	mv := BuildMeterValue(time.Now(), reading, 0, 16)
	soc := sampleFor(t, mv, types.MeasurandSoC, "")
	require.NotNil(t, soc)
	assert.Equal(t, "42", soc.Value)
	assert.Equal(t, types.LocationEV, soc.Location)
}

func TestListProfilesSorted(t *testing.T) {
	list := ListProfiles()
	require.NotEmpty(t, list)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Id, list[i].Id)
	}
}
