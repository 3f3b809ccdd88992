package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/config"
	"github.com/ernie/fortress-ops/internal/registry"
)

func TestNewRejectsUnknownTimezone(t *testing.T) {
	reg, err := registry.Build(nil)
	require.NoError(t, err)

	_, err = New(reg, "Mars/Olympus_Mons")
	assert.Error(t, err)
}

func TestSchedulerStartStop(t *testing.T) {
	reg, err := registry.Build([]config.GameServer{
		{Address: "192.0.2.1:27015", Schedulable: true},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	s, err := New(reg, "US/Eastern")
	require.NoError(t, err)

	s.Start()
	s.Stop()
}

// The managed lines come in exactly one enabled and one disabled form,
// and the disabled include still matches its own edit prefix so the
// toggle is reversible.
func TestManagedLineForms(t *testing.T) {
	assert.Equal(t, "// "+eventIncludeOn, eventIncludeOff)

	for _, pair := range []struct{ pfx, on, off string }{
		{mapcyclePfx, mapcycleOn, mapcycleOff},
		{reservedSlotsPfx, reservedSlotsOn, reservedSlotsOff},
		{visibleMaxPfx, visibleMaxOn, visibleMaxOff},
	} {
		assert.Contains(t, pair.on, pair.pfx)
		assert.Contains(t, pair.off, pair.pfx)
		assert.NotEqual(t, pair.on, pair.off)
	}
}
