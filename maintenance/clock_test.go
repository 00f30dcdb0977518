package maintenance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/maintenance"
)

func TestClock_StampInOperatorZone(t *testing.T) {
	// 14:05 UTC is 11:05 in São Paulo (UTC-3, no DST since 2019).
	c, err := maintenance.NewClock("")
	require.NoError(t, err)
	loc := c.Location()
	assert.Equal(t, maintenance.DefaultTimezone, loc.String())

	fixed := maintenance.FixedClock(time.Date(2025, time.March, 14, 14, 5, 9, 0, time.UTC).In(loc))
	m := fixed.Stamp()

	assert.Equal(t, "14/03/2025 11:05:09", m.Timestamp)
	assert.Equal(t, maintenance.DefaultTimezone, m.Timezone)
}

func TestClock_Today(t *testing.T) {
	c := maintenance.FixedClock(time.Date(2025, time.March, 14, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC), c.Today())
}

func TestNewClock_UnknownZone(t *testing.T) {
	_, err := maintenance.NewClock("Mars/Olympus")
	assert.Error(t, err)
}
