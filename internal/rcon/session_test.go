package rcon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/domain"
)

// closedPort returns a local address that refuses connections.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// A snapshot younger than the cache window is served as-is without
// touching the wire; one past the window forces a refresh, which here
// fails because nothing is listening on the address.
func TestStatusCacheWindow(t *testing.T) {
	s := NewSession(closedPort(t), "pw")

	base := time.Date(2026, 7, 5, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	s.cachedState = &domain.GameState{Map: "pl_upward", MaxPlayers: 24}
	s.cachedAt = base

	current = base.Add(statusCacheTTL - time.Millisecond)
	state, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pl_upward", state.Map)
	assert.Equal(t, 24, state.MaxPlayers)

	current = base.Add(statusCacheTTL + time.Millisecond)
	_, err = s.Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
}
