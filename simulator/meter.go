package simulator

import (
	"math/rand"
	"strconv"
	"time"

	"vcpsim/types"
)

// Reading is the electrical state of one connector at one meter tick.
type Reading struct {
	PerPhaseCurrentA  float64
	Phases            int
	Voltages          []float64
	PowerW            float64
	EnergyIncrementWh float64
	BodyTemp          float64
	CableTemp         float64
	Soc               *float64
	CarFull           bool
}

// TakeReading advances the car simulation (when present) and models the
// feeder: per-phase voltage sags with load, temperatures wander around
// ambient. Without a car the connector is assumed to draw the full offered
// current on every charger phase.
func TakeReading(offeredA float64, chargerPhases int, car *Car, intervalSeconds float64) Reading {
	reading := Reading{}
	if car != nil {
		tick := car.Tick(intervalSeconds)
		reading.PerPhaseCurrentA = tick.CurrentA
		reading.Phases = car.EffectivePhases
		soc := tick.Soc
		reading.Soc = &soc
		reading.CarFull = tick.CurrentA == 0 && tick.Soc >= 1.0
	} else {
		reading.PerPhaseCurrentA = offeredA
		reading.Phases = chargerPhases
	}

	reading.Voltages = make([]float64, reading.Phases)
	for k := 0; k < reading.Phases; k++ {
		reading.Voltages[k] = 232 - 0.15*reading.PerPhaseCurrentA + (rand.Float64() - 0.5)
		reading.PowerW += reading.Voltages[k] * reading.PerPhaseCurrentA
	}
	reading.EnergyIncrementWh = reading.PowerW * intervalSeconds / 3600
	reading.BodyTemp = 20 + (rand.Float64()*2 - 1)
	reading.CableTemp = 19 + (rand.Float64()*2 - 1)
	return reading
}

var phaseNames = []types.Phase{types.PhaseL1, types.PhaseL2, types.PhaseL3}

// BuildMeterValue assembles the sampled values for one tick. totalEnergyWh is
// the connector's cumulative register after the tick's increment was applied.
func BuildMeterValue(at time.Time, reading Reading, totalEnergyWh, offeredA float64) types.MeterValue {
	samples := []types.SampledValue{
		{
			Value:     strconv.FormatFloat(totalEnergyWh/1000, 'f', 3, 64),
			Measurand: types.MeasurandEnergyActiveImportRegister,
			Unit:      types.UnitOfMeasureKWh,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationOutlet,
		},
		{
			Value:     strconv.FormatFloat(offeredA, 'f', 1, 64),
			Measurand: types.MeasurandCurrentOffered,
			Unit:      types.UnitOfMeasureA,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationOutlet,
		},
		{
			Value:     strconv.FormatFloat(reading.BodyTemp, 'f', 1, 64),
			Measurand: types.MeasurandTemperature,
			Unit:      types.UnitOfMeasureCelsius,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationBody,
		},
		{
			Value:     strconv.FormatFloat(reading.CableTemp, 'f', 1, 64),
			Measurand: types.MeasurandTemperature,
			Unit:      types.UnitOfMeasureCelsius,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationCable,
		},
	}
	for k := 0; k < reading.Phases && k < len(phaseNames); k++ {
		samples = append(samples, types.SampledValue{
			Value:     strconv.FormatFloat(reading.Voltages[k], 'f', 1, 64),
			Measurand: types.MeasurandVoltage,
			Unit:      types.UnitOfMeasureV,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationOutlet,
			Phase:     phaseNames[k],
		})
		samples = append(samples, types.SampledValue{
			Value:     strconv.FormatFloat(reading.PerPhaseCurrentA, 'f', 1, 64),
			Measurand: types.MeasurandCurrentImport,
			Unit:      types.UnitOfMeasureA,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationOutlet,
			Phase:     phaseNames[k],
		})
	}
	samples = append(samples, types.SampledValue{
		Value:     strconv.FormatFloat(reading.PowerW, 'f', 1, 64),
		Measurand: types.MeasurandPowerActiveImport,
		Unit:      types.UnitOfMeasureW,
		Context:   types.ReadingContextSamplePeriodic,
		Location:  types.LocationOutlet,
	})
	if reading.Soc != nil {
		samples = append(samples, types.SampledValue{
			Value:     strconv.FormatFloat(*reading.Soc*100, 'f', 0, 64),
			Measurand: types.MeasurandSoC,
			Unit:      types.UnitOfMeasurePercent,
			Context:   types.ReadingContextSamplePeriodic,
			Location:  types.LocationEV,
		})
	}
	return types.MeterValue{
		Timestamp:    types.NewDateTime(at),
		SampledValue: samples,
	}
}
