package ingress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/fortress-ops/internal/domain"
)

func TestParseLineChat(t *testing.T) {
	event := ParseLine(`"Scout<7><[U:1:111]><Red>" say "need a dispenser here"`)

	require.Equal(t, domain.EventChat, event.Kind)
	require.NotNil(t, event.Chat)
	assert.Equal(t, "Scout", event.Chat.From.Name)
	assert.Equal(t, uint(7), event.Chat.From.UserID)
	assert.Equal(t, "[U:1:111]", event.Chat.From.SteamID)
	assert.Equal(t, "Red", event.Chat.From.Team)
	assert.Equal(t, "need a dispenser here", event.Chat.Text)
}

func TestParseLineConnected(t *testing.T) {
	event := ParseLine(`"Heavy<12><[U:1:222]><>" connected, address "192.0.2.10:27005"`)

	require.Equal(t, domain.EventConnected, event.Kind)
	require.NotNil(t, event.Connected)
	assert.Equal(t, "Heavy", event.Connected.Player.Name)
	assert.Empty(t, event.Connected.Player.Team)
	assert.Equal(t, "192.0.2.10", event.Connected.IP)
	assert.Equal(t, uint16(27005), event.Connected.Port)
}

func TestParseLineDisconnected(t *testing.T) {
	event := ParseLine(`"Heavy<12><[U:1:222]><Blue>" disconnected (reason "Disconnect by user.")`)

	require.Equal(t, domain.EventDisconnected, event.Kind)
	require.NotNil(t, event.Disconnected)
	assert.Equal(t, "[U:1:222]", event.Disconnected.Player.SteamID)
	assert.Equal(t, "Disconnect by user.", event.Disconnected.Reason)
}

func TestParseLineJoinedTeam(t *testing.T) {
	event := ParseLine(`"Medic<3><[U:1:333]><Unassigned>" joined team "Blue"`)

	require.Equal(t, domain.EventJoinedTeam, event.Kind)
	require.NotNil(t, event.JoinedTeam)
	assert.Equal(t, "Medic", event.JoinedTeam.Player.Name)
	assert.Equal(t, "Blue", event.JoinedTeam.Team)
}

func TestParseLineMapStart(t *testing.T) {
	event := ParseLine(`Started map "pl_upward" (CRC "1a2b3c")`)

	require.Equal(t, domain.EventMapStart, event.Kind)
	require.NotNil(t, event.MapStart)
	assert.Equal(t, "pl_upward", event.MapStart.Map)
}

func TestParseLineInterPlayer(t *testing.T) {
	event := ParseLine(`"Soldier<4><[U:1:444]><Red>" triggered "domination" against "Sniper<5><[U:1:555]><Blue>"`)

	require.Equal(t, domain.EventInterPlayer, event.Kind)
	require.NotNil(t, event.InterPlayer)
	assert.Equal(t, domain.ActionDomination, event.InterPlayer.Action)
	assert.Equal(t, "[U:1:444]", event.InterPlayer.From.SteamID)
	assert.Equal(t, "[U:1:555]", event.InterPlayer.Against.SteamID)
}

func TestParseLineRevenge(t *testing.T) {
	event := ParseLine(`"Sniper<5><[U:1:555]><Blue>" triggered "revenge" against "Soldier<4><[U:1:444]><Red>"`)

	require.Equal(t, domain.EventInterPlayer, event.Kind)
	assert.Equal(t, domain.ActionRevenge, event.InterPlayer.Action)
}

// ParseLine is total: anything unrecognized comes back as Unknown with
// the raw line preserved.
func TestParseLineUnknown(t *testing.T) {
	lines := []string{
		"",
		"server_cvar: \"mp_timelimit\" \"30\"",
		`"Broken<x><y>" say "malformed player term"`,
		"World triggered \"Round_Win\" (winner \"Red\")",
	}

	for _, line := range lines {
		event := ParseLine(line)
		assert.Equal(t, domain.EventUnknown, event.Kind, "line: %s", line)
		assert.Equal(t, line, event.Raw)
		assert.Nil(t, event.Chat)
		assert.Nil(t, event.InterPlayer)
	}
}

// Names containing angle brackets or quotes must not break the player
// term match.
func TestParseLineAwkwardName(t *testing.T) {
	event := ParseLine(`"<<sniper>><9><[U:1:999]><Blue>" say "hello"`)

	require.Equal(t, domain.EventChat, event.Kind)
	assert.Equal(t, "<<sniper>>", event.Chat.From.Name)
}
