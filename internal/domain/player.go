package domain

import "time"

// Player identifies a player as reported by the game server.
type Player struct {
	Name    string `json:"name"`
	UserID  uint   `json:"user_id"`
	SteamID string `json:"steam_id"` // bracketed textual form, e.g. "[U:1:42]"
	Team    string `json:"team,omitempty"`
}

// GameState is a point-in-time snapshot of a server produced by a status query.
type GameState struct {
	Players    []Player  `json:"players"`
	MaxPlayers int       `json:"max_players"`
	Map        string    `json:"map"`
	TimeLeft   *TimeLeft `json:"time_left,omitempty"`
	NextMap    *NextMap  `json:"next_map,omitempty"`
}

// PlayerCount returns the number of players in the snapshot.
func (g GameState) PlayerCount() int {
	return len(g.Players)
}

// TimeLeft describes the remaining time on the current map.
// LastRound is exclusive with the other fields.
type TimeLeft struct {
	LastRound bool          `json:"last_round,omitempty"`
	Remaining time.Duration `json:"remaining,omitempty"`
	Rounds    int           `json:"rounds,omitempty"` // 0 when no round cap was reported
}

// NextMap describes the upcoming map. PendingVote means the vote has
// not happened yet and Map is empty.
type NextMap struct {
	PendingVote bool   `json:"pending_vote,omitempty"`
	Map         string `json:"map,omitempty"`
}

// CanonicalPair orders two steam IDs lexicographically so that any
// unordered player pair maps to exactly one (lesser, greater) key.
func CanonicalPair(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}
