package chargepoint

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"vcpsim/ocpp/core"
)

// Configuration is the key/value table a real station exposes through
// GetConfiguration and ChangeConfiguration. All values are string-encoded on
// the wire.
type Configuration struct {
	mu    sync.Mutex
	order []string
	items map[string]*configItem
}

type configItem struct {
	value    string
	readonly bool
}

func NewConfiguration(config ChargerConfig) *Configuration {
	c := &Configuration{items: make(map[string]*configItem)}

	rotation := make([]string, config.NumConnectors+1)
	for i := range rotation {
		rotation[i] = fmt.Sprintf("%d.RST", i)
	}

	c.addRO("SupportedFeatureProfiles", "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger")
	c.addRO("NumberOfConnectors", strconv.Itoa(config.NumConnectors))
	c.addRW("HeartbeatInterval", "300")
	c.addRW("ConnectionTimeOut", "60")
	c.addRO("GetConfigurationMaxKeys", "99")
	c.addRW("MeterValueSampleInterval", "15")
	c.addRW("MeterValuesSampledData", "Energy.Active.Import.Register,Power.Active.Import,Current.Import,Voltage")
	c.addRW("MeterValuesAlignedData", "Energy.Active.Import.Register")
	c.addRW("ClockAlignedDataInterval", "0")
	c.addRW("AuthorizeRemoteTxRequests", "false")
	c.addRW("LocalAuthorizeOffline", "true")
	c.addRW("LocalPreAuthorize", "false")
	c.addRW("AuthorizationCacheEnabled", "true")
	c.addRW("StopTransactionOnEVSideDisconnect", "true")
	c.addRW("StopTransactionOnInvalidId", "true")
	c.addRW("UnlockConnectorOnEVSideDisconnect", "true")
	c.addRO("ChargeProfileMaxStackLevel", "99")
	c.addRO("ChargingScheduleAllowedChargingRateUnit", "Current,Power")
	c.addRO("ChargingScheduleMaxPeriods", "24")
	c.addRO("MaxChargingProfilesInstalled", "10")
	c.addRW("LocalAuthListEnabled", "true")
	c.addRO("LocalAuthListMaxLength", "100")
	c.addRO("SendLocalListMaxLength", "100")
	c.addRO("ReserveConnectorZeroSupported", "true")
	c.addRW("ConnectorPhaseRotation", strings.Join(rotation, ","))
	c.addRO("ConnectorPhaseRotationMaxLength", strconv.Itoa(config.NumConnectors+1))
	c.addRO("ChargePointVendor", config.Vendor)
	c.addRO("ChargePointModel", config.Model)
	c.addRO("ChargePointSerialNumber", config.SerialNumber)
	c.addRO("FirmwareVersion", config.FirmwareVersion)
	c.addRO("MeterType", config.MeterType)
	c.addRO("MeterSerialNumber", config.MeterSerialNumber)
	return c
}

func (c *Configuration) addRO(key, value string) { c.add(key, value, true) }
func (c *Configuration) addRW(key, value string) { c.add(key, value, false) }

func (c *Configuration) add(key, value string, readonly bool) {
	c.order = append(c.order, key)
	c.items[key] = &configItem{value: value, readonly: readonly}
}

// Get returns the requested keys in registration order, or the whole table
// when no filter is given. Unknown keys are echoed back separately.
func (c *Configuration) Get(keys []string) ([]core.ConfigurationKey, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var known []core.ConfigurationKey
	var unknown []string
	if len(keys) == 0 {
		for _, key := range c.order {
			known = append(known, c.describe(key))
		}
		return known, nil
	}
	for _, key := range keys {
		if _, ok := c.items[key]; ok {
			known = append(known, c.describe(key))
		} else {
			unknown = append(unknown, key)
		}
	}
	return known, unknown
}

func (c *Configuration) describe(key string) core.ConfigurationKey {
	item := c.items[key]
	value := item.value
	return core.ConfigurationKey{Key: key, Readonly: item.readonly, Value: &value}
}

// Set applies a ChangeConfiguration. Unknown keys are NotSupported, read-only
// keys are Rejected.
func (c *Configuration) Set(key, value string) core.ConfigurationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return core.ConfigurationStatusNotSupported
	}
	if item.readonly {
		return core.ConfigurationStatusRejected
	}
	item.value = value
	return core.ConfigurationStatusAccepted
}

// Value returns the current string value of a key.
func (c *Configuration) Value(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return "", false
	}
	return item.value, true
}

// IntValue returns a numeric key, falling back when unset or unparsable.
func (c *Configuration) IntValue(key string, fallback int) int {
	raw, ok := c.Value(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
