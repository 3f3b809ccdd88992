package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/config"
	"github.com/ernie/fortress-ops/internal/domain"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Build([]config.GameServer{
		{Address: "192.0.2.1:27015", Name: "payload", Glyph: ":two:", Aggregated: true, Schedulable: true},
		{Address: "192.0.2.2:27015", Name: "ctf", Glyph: ":one:", Aggregated: true},
		{Address: "192.0.2.3:27015", Name: "mge", Glyph: ":three:"},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	return reg
}

func TestBuildRejectsDuplicateAddress(t *testing.T) {
	_, err := Build([]config.GameServer{
		{Address: "192.0.2.1:27015"},
		{Address: "192.0.2.1:27015"},
	})
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	reg := testRegistry(t)

	handle, err := reg.Lookup("192.0.2.2:27015")
	require.NoError(t, err)
	assert.Equal(t, "ctf", handle.Desc.Name)

	_, err = reg.Lookup("192.0.2.99:27015")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResolveSource(t *testing.T) {
	reg := testRegistry(t)

	t.Run("exact match", func(t *testing.T) {
		handle, err := reg.ResolveSource("192.0.2.1:27015")
		require.NoError(t, err)
		assert.Equal(t, "payload", handle.Desc.Name)
	})

	t.Run("host match with different port", func(t *testing.T) {
		// Telemetry often arrives from an ephemeral source port.
		handle, err := reg.ResolveSource("192.0.2.2:53012")
		require.NoError(t, err)
		assert.Equal(t, "ctf", handle.Desc.Name)
	})

	t.Run("unknown host", func(t *testing.T) {
		_, err := reg.ResolveSource("198.51.100.1:27015")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestResolveSourceAmbiguousHost(t *testing.T) {
	reg, err := Build([]config.GameServer{
		{Address: "192.0.2.1:27015", Name: "first"},
		{Address: "192.0.2.1:27016", Name: "second"},
	})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	// The exact port still resolves.
	handle, err := reg.ResolveSource("192.0.2.1:27016")
	require.NoError(t, err)
	assert.Equal(t, "second", handle.Desc.Name)

	// A foreign port cannot pick between the two.
	_, err = reg.ResolveSource("192.0.2.1:53012")
	assert.Error(t, err)
}

func TestSubsets(t *testing.T) {
	reg := testRegistry(t)

	aggregated := reg.Aggregated()
	require.Len(t, aggregated, 2)

	schedulable := reg.Schedulable()
	require.Len(t, schedulable, 1)
	assert.Equal(t, "payload", schedulable[0].Desc.Name)

	assert.Len(t, reg.All(), 3)
}

func TestSortByGlyph(t *testing.T) {
	reg := testRegistry(t)

	sorted := SortByGlyph(reg.All())
	require.Len(t, sorted, 3)
	assert.Equal(t, ":one:", sorted[0].Desc.Glyph)
	assert.Equal(t, ":three:", sorted[1].Desc.Glyph)
	assert.Equal(t, ":two:", sorted[2].Desc.Glyph)

	// The input order is untouched.
	assert.Equal(t, ":two:", reg.All()[0].Desc.Glyph)
}
