package domain

// ServerDescriptor holds the identity and capabilities of a managed game
// server. Descriptors are built once at startup and never mutated.
type ServerDescriptor struct {
	Address string `json:"address"` // host:port, unique key
	Name    string `json:"name"`
	Glyph   string `json:"glyph"` // short display marker used in aggregated output

	// Capability flags.
	Aggregated    bool `json:"aggregated"`     // participates in status aggregation
	AllowRally    bool `json:"allow_rally"`    // eligible for player-rally commands
	CfgControlled bool `json:"cfg_controlled"` // config files managed over the file channel
	Schedulable   bool `json:"schedulable"`    // hosts the scheduled weekly event

	PresenceChannelID string `json:"presence_channel_id,omitempty"`
	EventLogSink      string `json:"event_log_sink,omitempty"` // path prefix for archived telemetry, empty disables

	RconPassword string       `json:"-"`
	FileTransfer FileTransfer `json:"-"`
}

// FileTransfer holds credentials for the server's remote file channel.
type FileTransfer struct {
	Kind     string `json:"kind"` // "ftp" or "sftp"
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"-"`
}
