package domain

import "time"

// EventKind discriminates the parsed telemetry event variants.
type EventKind string

const (
	EventChat         EventKind = "chat"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventJoinedTeam   EventKind = "joined_team"
	EventMapStart     EventKind = "map_start"
	EventInterPlayer  EventKind = "inter_player"
	EventUnknown      EventKind = "unknown"
)

// Inter-player actions we care about. Other action strings pass through
// unchanged.
const (
	ActionDomination = "domination"
	ActionRevenge    = "revenge"
)

// Event is one parsed telemetry record. Kind selects which variant
// pointer is populated; all others are nil. Unknown events carry only
// the raw line.
type Event struct {
	Kind      EventKind `json:"event"`
	Server    string    `json:"server"` // source address, filled by the ingress
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"-"`

	Chat         *ChatEvent         `json:"chat,omitempty"`
	Connected    *ConnectedEvent    `json:"connected,omitempty"`
	Disconnected *DisconnectedEvent `json:"disconnected,omitempty"`
	JoinedTeam   *JoinedTeamEvent   `json:"joined_team,omitempty"`
	MapStart     *MapStartEvent     `json:"map_start,omitempty"`
	InterPlayer  *InterPlayerEvent  `json:"inter_player,omitempty"`
}

// ChatEvent is emitted when a player says something in global chat.
type ChatEvent struct {
	From Player `json:"from"`
	Text string `json:"text"`
}

// ConnectedEvent is emitted when a player connects to the server.
type ConnectedEvent struct {
	Player Player `json:"player"`
	IP     string `json:"ip"`
	Port   uint16 `json:"port"`
}

// DisconnectedEvent is emitted when a player disconnects.
type DisconnectedEvent struct {
	Player Player `json:"player"`
	Reason string `json:"reason"`
}

// JoinedTeamEvent is emitted when a player joins a team.
type JoinedTeamEvent struct {
	Player Player `json:"player"`
	Team   string `json:"team"`
}

// MapStartEvent is emitted when the server loads a new map.
type MapStartEvent struct {
	Map string `json:"map"`
}

// InterPlayerEvent is emitted for triggered actions between two players
// (dominations, revenges and similar).
type InterPlayerEvent struct {
	From    Player `json:"from"`
	Against Player `json:"against"`
	Action  string `json:"action"`
}
