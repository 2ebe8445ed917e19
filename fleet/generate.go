package fleet

import (
	"fmt"

	"github.com/go-faker/faker/v4"

	"vcpsim/chargepoint"
)

// GenerateChargers synthesizes count chargers named prefix-001..prefix-NNN
// from a base config, filling missing identity fields with fake but
// plausible values.
func (m *Manager) GenerateChargers(prefix string, count int, base chargepoint.ChargerConfig) ([]string, error) {
	if prefix == "" || count < 1 {
		return nil, fmt.Errorf("%w: prefix and positive count required", ErrInvalidArgument)
	}
	if base.NumConnectors == 0 {
		base.NumConnectors = 1
	}
	if base.Phases == 0 {
		base.Phases = 1
	}
	created := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		cfg := base
		cfg.CpId = fmt.Sprintf("%s-%03d", prefix, i)
		if cfg.Vendor == "" {
			cfg.Vendor = "vcpsim"
		}
		if cfg.Model == "" {
			cfg.Model = "VCP-1"
		}
		if cfg.SerialNumber == "" {
			cfg.SerialNumber = faker.CCNumber()
		}
		if cfg.FirmwareVersion == "" {
			cfg.FirmwareVersion = "1.0.0"
		}
		if cfg.Iccid == "" {
			cfg.Iccid = faker.CCNumber()
		}
		if cfg.Imsi == "" {
			cfg.Imsi = faker.CCNumber()
		}
		if err := m.Add(cfg); err != nil {
			return created, err
		}
		created = append(created, cfg.CpId)
	}
	return created, nil
}
