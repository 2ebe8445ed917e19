package chargepoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcpsim/ocpp/core"
)

func newTestConfiguration() *Configuration {
	cfg := testConfig("CP-A")
	cfg.NumConnectors = 2
	return NewConfiguration(cfg)
}

func TestGetConfigurationFilter(t *testing.T) {
	c := newTestConfiguration()

	known, unknown := c.Get([]string{"HeartbeatInterval", "NoSuchKey"})
	require.Len(t, known, 1)
	assert.Equal(t, "HeartbeatInterval", known[0].Key)
	assert.False(t, known[0].Readonly)
	require.NotNil(t, known[0].Value)
	assert.Equal(t, "300", *known[0].Value)
	assert.Equal(t, []string{"NoSuchKey"}, unknown)
}

func TestGetConfigurationAll(t *testing.T) {
	c := newTestConfiguration()
	known, unknown := c.Get(nil)
	assert.Nil(t, unknown)
	assert.GreaterOrEqual(t, len(known), 30)

	byKey := map[string]core.ConfigurationKey{}
	for _, k := range known {
		byKey[k.Key] = k
	}
	assert.Equal(t, "2", *byKey["NumberOfConnectors"].Value)
	assert.True(t, byKey["NumberOfConnectors"].Readonly)
	assert.Equal(t, "0.RST,1.RST,2.RST", *byKey["ConnectorPhaseRotation"].Value)
	assert.Equal(t, "3", *byKey["ConnectorPhaseRotationMaxLength"].Value)
	assert.Equal(t, "vcpsim", *byKey["ChargePointVendor"].Value)
	assert.Equal(t, "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger",
		*byKey["SupportedFeatureProfiles"].Value)
}

func TestSetConfiguration(t *testing.T) {
	c := newTestConfiguration()

	assert.Equal(t, core.ConfigurationStatusAccepted, c.Set("HeartbeatInterval", "60"))
	value, _ := c.Value("HeartbeatInterval")
	assert.Equal(t, "60", value)

	assert.Equal(t, core.ConfigurationStatusRejected, c.Set("NumberOfConnectors", "5"))
	assert.Equal(t, core.ConfigurationStatusNotSupported, c.Set("NoSuchKey", "1"))
}

func TestIntValue(t *testing.T) {
	c := newTestConfiguration()
	assert.Equal(t, 15, c.IntValue("MeterValueSampleInterval", 60))
	assert.Equal(t, 60, c.IntValue("NoSuchKey", 60))
	c.Set("MeterValueSampleInterval", "banana")
	assert.Equal(t, 60, c.IntValue("MeterValueSampleInterval", 60))
}
