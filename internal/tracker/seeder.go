// Package tracker derives durable per-player statistics from the
// telemetry event stream: seeding time, dominance scores and archived
// chat.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/domain"
	"github.com/ernie/fortress-ops/internal/rcon"
	"github.com/ernie/fortress-ops/internal/registry"
	"github.com/ernie/fortress-ops/internal/storage"
)

// SeederThreshold is the occupancy at or below which a server counts as
// seeding. The bound is closed: exactly this many players still seeds.
const SeederThreshold = 12

const (
	seederFlushInterval  = 10 * time.Second
	seederResyncInterval = 60 * time.Second
	seederQueueLen       = 100
)

// SeederManager fans telemetry events to one Seeder per server. Events
// for a single server are processed sequentially by that server's
// goroutine; distinct servers run independently.
type SeederManager struct {
	store *storage.Store
	reg   *registry.Registry

	mu      sync.Mutex
	seeders map[string]*Seeder // keyed by descriptor address
	sources map[string]*Seeder // resolved telemetry source -> seeder
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSeederManager creates a manager covering every registered server
func NewSeederManager(store *storage.Store, reg *registry.Registry) *SeederManager {
	return &SeederManager{
		store:   store,
		reg:     reg,
		seeders: make(map[string]*Seeder),
		sources: make(map[string]*Seeder),
		done:    make(chan struct{}),
	}
}

// Start seeds every tracker from an authoritative status snapshot and
// launches the per-server loops. A server that cannot be reached starts
// empty and catches up on the first resync.
func (m *SeederManager) Start(ctx context.Context) {
	for _, handle := range m.reg.All() {
		seeder := newSeeder(handle.Desc.Address, handle.Rcon, m.store)

		if state, err := handle.Rcon.Status(ctx); err != nil {
			log.Warn().Err(err).Str("server", handle.Desc.Address).Msg("Seed tracker starting without initial snapshot")
		} else {
			seeder.bootstrap(state, time.Now())
		}

		m.seeders[handle.Desc.Address] = seeder
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			seeder.run(ctx, m.done)
		}()
	}
}

// Stop flushes what is pending and stops all loops
func (m *SeederManager) Stop() {
	close(m.done)
	m.wg.Wait()
}

// Handle is the broker subscriber entry point. It routes the event to
// the owning server's queue; a full queue sheds its oldest event.
func (m *SeederManager) Handle(event domain.Event) {
	if event.Kind != domain.EventConnected && event.Kind != domain.EventDisconnected {
		return
	}

	seeder := m.resolve(event.Server)
	if seeder == nil {
		return
	}

	select {
	case seeder.events <- event:
		return
	default:
	}
	select {
	case <-seeder.events:
	default:
	}
	select {
	case seeder.events <- event:
	default:
	}
}

func (m *SeederManager) resolve(source string) *Seeder {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seeder, ok := m.sources[source]; ok {
		return seeder
	}
	handle, err := m.reg.ResolveSource(source)
	if err != nil {
		return nil
	}
	seeder := m.seeders[handle.Desc.Address]
	m.sources[source] = seeder
	return seeder
}

// Seeder tracks seed time for one server. All state is owned by the
// run goroutine; no internal locking is needed.
type Seeder struct {
	server  string
	session *rcon.Session
	store   *storage.Store
	events  chan domain.Event

	// now is swappable for tests.
	now func() time.Time

	joined  map[string]time.Time // steamid -> join instant
	seeding bool
	pending map[string]int64 // steamid -> seconds awaiting flush
}

func newSeeder(server string, session *rcon.Session, store *storage.Store) *Seeder {
	return &Seeder{
		server:  server,
		session: session,
		store:   store,
		events:  make(chan domain.Event, seederQueueLen),
		now:     time.Now,
		joined:  make(map[string]time.Time),
		// An empty server is at or below the threshold, so a tracker
		// starts out seeding until a snapshot or event says otherwise.
		seeding: true,
		pending: make(map[string]int64),
	}
}

// bootstrap initializes the tracker from an authoritative snapshot
func (s *Seeder) bootstrap(state domain.GameState, now time.Time) {
	for _, p := range state.Players {
		s.joined[p.SteamID] = now
	}
	s.seeding = len(s.joined) <= SeederThreshold
	log.Info().Str("server", s.server).Int("online", len(s.joined)).Bool("seeding", s.seeding).Msg("Seed tracker initialized")
}

func (s *Seeder) run(ctx context.Context, done <-chan struct{}) {
	flushTicker := time.NewTicker(seederFlushInterval)
	defer flushTicker.Stop()
	resyncTicker := time.NewTicker(seederResyncInterval)
	defer resyncTicker.Stop()

	for {
		select {
		case <-done:
			s.flush(ctx)
			return
		case <-ctx.Done():
			return
		case event := <-s.events:
			s.handle(event)
		case <-flushTicker.C:
			s.flush(ctx)
		case <-resyncTicker.C:
			s.resync(ctx)
		}
	}
}

func (s *Seeder) handle(event domain.Event) {
	switch event.Kind {
	case domain.EventConnected:
		s.handleJoin(event.Connected.Player.SteamID, s.now())
	case domain.EventDisconnected:
		s.handleLeave(event.Disconnected.Player.SteamID, s.now())
	}
}

// handleJoin records the join instant. When the join pushes occupancy
// above the threshold, every online player's interval up to this
// instant is credited and the server stops seeding.
func (s *Seeder) handleJoin(steamID string, now time.Time) {
	s.joined[steamID] = now

	if s.seeding && len(s.joined) > SeederThreshold {
		for id, joinedAt := range s.joined {
			s.accumulate(id, joinedAt, now)
			s.joined[id] = now
		}
		s.seeding = false
		log.Debug().Str("server", s.server).Int("online", len(s.joined)).Msg("Seeding threshold crossed, accumulation stopped")
	}
}

// handleLeave credits the leaving player while seeding. When the leave
// drops occupancy back to the threshold, all remaining players start
// accumulating from this instant.
func (s *Seeder) handleLeave(steamID string, now time.Time) {
	joinedAt, tracked := s.joined[steamID]
	if !tracked {
		return
	}

	if s.seeding {
		s.accumulate(steamID, joinedAt, now)
	}
	delete(s.joined, steamID)

	if !s.seeding && len(s.joined) <= SeederThreshold {
		for id := range s.joined {
			s.joined[id] = now
		}
		s.seeding = true
		log.Debug().Str("server", s.server).Int("online", len(s.joined)).Msg("Seeding threshold crossed, accumulation started")
	}
}

func (s *Seeder) accumulate(steamID string, from, to time.Time) {
	seconds := int64(to.Sub(from) / time.Second)
	if seconds > 0 {
		s.pending[steamID] += seconds
	}
}

// flush moves the pending accumulator into the durable store. On
// failure the accumulator is kept and the next flush retries it whole.
func (s *Seeder) flush(ctx context.Context) {
	if len(s.pending) == 0 {
		return
	}

	if err := s.store.AddSeederSeconds(ctx, s.pending); err != nil {
		log.Error().Err(err).Str("server", s.server).Int("players", len(s.pending)).Msg("Seed time flush failed, will retry")
		return
	}
	s.pending = make(map[string]int64)
}

// resync reconciles the tracker against an authoritative snapshot.
// Unknown online players are inserted at now. Tracked players missing
// from the snapshot (a lost disconnect) have their elapsed seeding time
// credited before being dropped.
func (s *Seeder) resync(ctx context.Context) {
	state, err := s.session.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Str("server", s.server).Msg("Seed tracker resync failed")
		return
	}

	now := s.now()
	online := make(map[string]bool, len(state.Players))
	for _, p := range state.Players {
		online[p.SteamID] = true
		if _, ok := s.joined[p.SteamID]; !ok {
			s.joined[p.SteamID] = now
		}
	}

	for id, joinedAt := range s.joined {
		if online[id] {
			continue
		}
		if s.seeding {
			s.accumulate(id, joinedAt, now)
		}
		delete(s.joined, id)
	}

	// Occupancy may have drifted past a threshold crossing we missed.
	wasSeeding := s.seeding
	s.seeding = len(s.joined) <= SeederThreshold
	if wasSeeding != s.seeding {
		for id := range s.joined {
			if wasSeeding {
				s.accumulate(id, s.joined[id], now)
			}
			s.joined[id] = now
		}
		log.Debug().Str("server", s.server).Bool("seeding", s.seeding).Msg("Seeding state corrected during resync")
	}
}
