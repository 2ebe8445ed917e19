package simulator

import "sort"

type TaperCurve string

const (
	TaperLinear      TaperCurve = "Linear"
	TaperExponential TaperCurve = "Exponential"
)

// Profile holds the static parameters of a simulated EV.
type Profile struct {
	Id                 string     `json:"id"`
	Name               string     `json:"name"`
	BatteryCapacityKwh float64    `json:"batteryCapacityKwh"`
	MaxAcCurrentA      float64    `json:"maxAcCurrentA"`
	OnboardChargerKw   float64    `json:"onboardChargerKw"`
	Phases             int        `json:"phases"`
	TaperStartSoc      float64    `json:"taperStartSoc"`
	TaperEndSoc        float64    `json:"taperEndSoc"`
	TaperCurve         TaperCurve `json:"taperCurve"`
}

var profiles = map[string]*Profile{
	"generic-small": {
		Id:                 "generic-small",
		Name:               "Generic city EV",
		BatteryCapacityKwh: 28,
		MaxAcCurrentA:      16,
		OnboardChargerKw:   7.4,
		Phases:             1,
		TaperStartSoc:      0.80,
		TaperEndSoc:        1.0,
		TaperCurve:         TaperLinear,
	},
	"generic-medium": {
		Id:                 "generic-medium",
		Name:               "Generic mid-size EV",
		BatteryCapacityKwh: 58,
		MaxAcCurrentA:      16,
		OnboardChargerKw:   11,
		Phases:             3,
		TaperStartSoc:      0.85,
		TaperEndSoc:        1.0,
		TaperCurve:         TaperExponential,
	},
	"generic-large": {
		Id:                 "generic-large",
		Name:               "Generic large EV",
		BatteryCapacityKwh: 95,
		MaxAcCurrentA:      32,
		OnboardChargerKw:   22,
		Phases:             3,
		TaperStartSoc:      0.88,
		TaperEndSoc:        1.0,
		TaperCurve:         TaperExponential,
	},
	"1p-32a": {
		Id:                 "1p-32a",
		Name:               "Single-phase 32A",
		BatteryCapacityKwh: 40,
		MaxAcCurrentA:      32,
		OnboardChargerKw:   7.4,
		Phases:             1,
		TaperStartSoc:      0.85,
		TaperEndSoc:        1.0,
		TaperCurve:         TaperLinear,
	},
	"3p-16a": {
		Id:                 "3p-16a",
		Name:               "Three-phase 16A",
		BatteryCapacityKwh: 64,
		MaxAcCurrentA:      16,
		OnboardChargerKw:   11,
		Phases:             3,
		TaperStartSoc:      0.85,
		TaperEndSoc:        1.0,
		TaperCurve:         TaperLinear,
	},
}

func FindProfile(id string) (*Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

func ListProfiles() []*Profile {
	list := make([]*Profile, 0, len(profiles))
	for _, p := range profiles {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Id < list[j].Id })
	return list
}
