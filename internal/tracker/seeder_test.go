package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ernie/fortress-ops/internal/domain"
)

// testSeeder builds a seeder with a controllable clock. The store and
// session stay nil; these tests never flush or resync.
func testSeeder(t *testing.T) (*Seeder, func(d time.Duration) time.Time) {
	t.Helper()
	s := newSeeder("192.0.2.1:27015", nil, nil)

	base := time.Date(2026, 7, 5, 12, 0, 0, 0, time.UTC)
	current := base
	s.now = func() time.Time { return current }

	advance := func(d time.Duration) time.Time {
		current = current.Add(d)
		return current
	}
	return s, advance
}

func id(n int) string {
	return string(rune('A' + n))
}

// A fresh tracker has zero players online, which is at or below the
// threshold, so it must accumulate from the very first join even when
// no initial snapshot ever arrives.
func TestSeederStartsSeeding(t *testing.T) {
	s, advance := testSeeder(t)
	assert.True(t, s.seeding)

	s.handleJoin("[U:1:1]", s.now())
	advance(time.Minute)
	s.handleLeave("[U:1:1]", s.now())
	assert.Equal(t, int64(60), s.pending["[U:1:1]"])
}

func TestSeederAccumulatesWhileSeeding(t *testing.T) {
	s, advance := testSeeder(t)

	s.handleJoin("[U:1:1]", s.now())
	advance(90 * time.Second)
	s.handleLeave("[U:1:1]", s.now())

	assert.Equal(t, int64(90), s.pending["[U:1:1]"])
	assert.Empty(t, s.joined)
	assert.True(t, s.seeding)
}

func TestSeederThresholdIsClosed(t *testing.T) {
	s, _ := testSeeder(t)

	// Exactly the threshold still counts as seeding.
	for i := 0; i < SeederThreshold; i++ {
		s.handleJoin(id(i), s.now())
	}
	assert.True(t, s.seeding)

	// One more stops it.
	s.handleJoin(id(SeederThreshold), s.now())
	assert.False(t, s.seeding)
}

// Crossing above the threshold credits every online player up to the
// crossing instant and resets their join instants.
func TestSeederCreditsOnUpwardCrossing(t *testing.T) {
	s, advance := testSeeder(t)

	start := s.now()
	for i := 0; i < SeederThreshold; i++ {
		s.handleJoin(id(i), start)
	}

	crossing := advance(5 * time.Minute)
	s.handleJoin(id(SeederThreshold), crossing)

	assert.False(t, s.seeding)
	for i := 0; i < SeederThreshold; i++ {
		assert.Equal(t, int64(300), s.pending[id(i)], "player %d", i)
	}
	// The newcomer joined at the crossing instant; no time to credit.
	assert.Zero(t, s.pending[id(SeederThreshold)])
	for _, joinedAt := range s.joined {
		assert.Equal(t, crossing, joinedAt)
	}
}

// No time is credited while the server is above the threshold, and the
// downward crossing restarts accumulation from the crossing instant.
func TestSeederDownwardCrossingRestartsAccumulation(t *testing.T) {
	s, advance := testSeeder(t)

	for i := 0; i <= SeederThreshold; i++ {
		s.handleJoin(id(i), s.now())
	}
	assert.False(t, s.seeding)

	advance(10 * time.Minute)
	crossing := s.now()
	s.handleLeave(id(SeederThreshold), crossing)

	assert.True(t, s.seeding)
	// The busy interval is not credited to anyone.
	assert.Empty(t, s.pending)
	for _, joinedAt := range s.joined {
		assert.Equal(t, crossing, joinedAt)
	}

	// From the crossing on, time accrues again.
	advance(30 * time.Second)
	s.handleLeave(id(0), s.now())
	assert.Equal(t, int64(30), s.pending[id(0)])
}

func TestSeederIgnoresUntrackedLeave(t *testing.T) {
	s, _ := testSeeder(t)

	s.handleLeave("[U:1:99]", s.now())

	assert.Empty(t, s.pending)
	assert.Empty(t, s.joined)
	assert.True(t, s.seeding)
}

func TestSeederBootstrapFromSnapshot(t *testing.T) {
	s, _ := testSeeder(t)

	state := domain.GameState{
		Players: []domain.Player{
			{SteamID: "[U:1:1]"},
			{SteamID: "[U:1:2]"},
		},
	}
	s.bootstrap(state, s.now())

	assert.Len(t, s.joined, 2)
	assert.True(t, s.seeding)
}

func TestSeederSubSecondIntervalNotCredited(t *testing.T) {
	s, advance := testSeeder(t)

	s.handleJoin("[U:1:1]", s.now())
	advance(500 * time.Millisecond)
	s.handleLeave("[U:1:1]", s.now())

	assert.Empty(t, s.pending)
}
