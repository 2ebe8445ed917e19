package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"vcpsim/chargepoint"
)

// rosterFile is the persisted shape: a plain JSON object so it can be edited
// by hand between runs.
type rosterFile struct {
	Chargers []chargepoint.ChargerConfig `json:"chargers"`
}

func loadRoster(path string) ([]chargepoint.ChargerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var roster rosterFile
	if err = json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("roster file %s: %w", path, err)
	}
	return roster.Chargers, nil
}

// saveRoster rewrites the file atomically: write aside, then rename over.
func saveRoster(path string, configs []chargepoint.ChargerConfig) error {
	sort.Slice(configs, func(i, j int) bool { return configs[i].CpId < configs[j].CpId })
	data, err := json.MarshalIndent(rosterFile{Chargers: configs}, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// persistLocked writes the current roster; call with m.mu held. Save failures
// are logged, never fatal.
func (m *Manager) persistLocked() {
	configs := make([]chargepoint.ChargerConfig, 0, len(m.chargers))
	for _, mc := range m.chargers {
		configs = append(configs, mc.Point.Config)
	}
	if err := saveRoster(m.rosterPath, configs); err != nil {
		m.logger.Error("roster save failed", err)
	}
}

func sortViews(views []ChargerView) {
	sort.Slice(views, func(i, j int) bool { return views[i].CpId < views[j].CpId })
}
