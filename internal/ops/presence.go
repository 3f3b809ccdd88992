package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/registry"
)

// presenceInterval is deliberately just over five minutes: the external
// presence surface rate-limits renames to twice per five minutes.
const presenceInterval = 5*time.Minute + time.Second

// PresencePublisher renames an external presence surface. The chat
// platform collaborator provides the real implementation.
type PresencePublisher interface {
	Rename(ctx context.Context, channelID, name string) error
}

// LogPublisher is the default publisher used when no chat platform is
// attached; it only logs the rendered name.
type LogPublisher struct{}

// Rename logs the would-be rename
func (LogPublisher) Rename(ctx context.Context, channelID, name string) error {
	log.Info().Str("channel", channelID).Str("name", name).Msg("Presence update")
	return nil
}

// PlayerCounter periodically publishes each server's occupancy to its
// presence channel.
type PlayerCounter struct {
	reg       *registry.Registry
	publisher PresencePublisher

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPlayerCounter creates the publisher for all servers that have a
// presence channel configured
func NewPlayerCounter(reg *registry.Registry, publisher PresencePublisher) *PlayerCounter {
	return &PlayerCounter{reg: reg, publisher: publisher, done: make(chan struct{})}
}

// Start launches one poll loop per eligible server
func (p *PlayerCounter) Start(ctx context.Context) {
	for _, handle := range p.reg.All() {
		if handle.Desc.PresenceChannelID == "" {
			continue
		}
		p.wg.Add(1)
		go func(h *registry.Handle) {
			defer p.wg.Done()
			p.pollLoop(ctx, h)
		}(handle)
	}
}

// Stop terminates all poll loops
func (p *PlayerCounter) Stop() {
	close(p.done)
	p.wg.Wait()
}

func (p *PlayerCounter) pollLoop(ctx context.Context, handle *registry.Handle) {
	ticker := time.NewTicker(presenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publish(ctx, handle)
		}
	}
}

// publish reads the occupancy and renames the presence channel. On a
// command channel failure the session is reconnected and the tick is
// skipped; the next tick retries.
func (p *PlayerCounter) publish(ctx context.Context, handle *registry.Handle) {
	state, err := handle.Rcon.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Str("server", handle.Desc.Address).Msg("Presence poll failed, forcing reconnect")
		if rerr := handle.Rcon.Reconnect(ctx); rerr != nil {
			log.Warn().Err(rerr).Str("server", handle.Desc.Address).Msg("Presence reconnect failed")
		}
		return
	}

	name := fmt.Sprintf("%s %d/%d online", handle.Desc.Glyph, state.PlayerCount(), state.MaxPlayers)
	if err := p.publisher.Rename(ctx, handle.Desc.PresenceChannelID, name); err != nil {
		log.Warn().Err(err).Str("server", handle.Desc.Address).Msg("Presence rename failed")
	}
}
