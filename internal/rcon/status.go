package rcon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ernie/fortress-ops/internal/domain"
)

// sourceTVName is the broadcast observer every server reports as a
// player. It is filtered from snapshots.
const sourceTVName = "SourceTV"

var (
	// Player lines: slot, quoted name, bracketed steam id, connected
	// duration. Two duration fields mean minutes:seconds, three mean
	// hours:minutes:seconds.
	playerLineRegex = regexp.MustCompile(`^#\s+(\d+)\s+"(.+)"\s+(\[U:\d+:\d+\])\s+(\d+):(\d+)(?::(\d+))?`)

	mapLineRegex = regexp.MustCompile(`map\s+:\s+(\S+) at:`)

	timeleftRegex  = regexp.MustCompile(`Time remaining for map:\s+(?:(\d+):)?(\d+):(\d+)(?:, or change map after (\d+) more rounds?)?`)
	lastRoundRegex = regexp.MustCompile(`This is the last round`)

	nextMapRegex     = regexp.MustCompile(`Next Map:\s+(\S+)`)
	pendingVoteRegex = regexp.MustCompile(`Pending Vote`)
)

// parseGameState assembles a GameState from the raw status reply, the
// combined "timeleft; nextmap" reply and the visible-max-players value.
func parseGameState(statusReply, timeReply, maxPlayers string) (domain.GameState, error) {
	var state domain.GameState

	mapMatch := mapLineRegex.FindStringSubmatch(statusReply)
	if mapMatch == nil {
		return state, fmt.Errorf("%w: no map line in status reply", domain.ErrProtocol)
	}
	state.Map = mapMatch[1]

	cap, err := strconv.Atoi(strings.TrimSpace(maxPlayers))
	if err != nil {
		return state, fmt.Errorf("%w: bad sv_visiblemaxplayers %q", domain.ErrProtocol, maxPlayers)
	}
	state.MaxPlayers = cap

	for _, line := range strings.Split(statusReply, "\n") {
		player, ok := parsePlayerLine(strings.TrimRight(line, "\r"))
		if !ok {
			continue
		}
		if player.Name == sourceTVName {
			continue
		}
		state.Players = append(state.Players, player)
	}

	state.TimeLeft = parseTimeLeft(timeReply)
	state.NextMap = parseNextMap(timeReply)

	return state, nil
}

// parsePlayerLine parses one status player line. Returns ok=false for
// any line that is not a player line.
func parsePlayerLine(line string) (domain.Player, bool) {
	match := playerLineRegex.FindStringSubmatch(line)
	if match == nil {
		return domain.Player{}, false
	}

	uid, _ := strconv.ParseUint(match[1], 10, 32)
	return domain.Player{
		Name:    match[2],
		UserID:  uint(uid),
		SteamID: match[3],
	}, true
}

// ConnectedDuration extracts the connected time from a status player
// line; used by callers that need per-player uptime.
func ConnectedDuration(line string) (time.Duration, bool) {
	match := playerLineRegex.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	first, _ := strconv.Atoi(match[4])
	second, _ := strconv.Atoi(match[5])
	if match[6] == "" {
		// minutes:seconds
		return time.Duration(first)*time.Minute + time.Duration(second)*time.Second, true
	}
	third, _ := strconv.Atoi(match[6])
	return time.Duration(first)*time.Hour + time.Duration(second)*time.Minute + time.Duration(third)*time.Second, true
}

// parseTimeLeft decodes the three mutually exclusive timeleft states:
// last round marker, remaining time, remaining time plus round cap.
func parseTimeLeft(reply string) *domain.TimeLeft {
	if lastRoundRegex.MatchString(reply) {
		return &domain.TimeLeft{LastRound: true}
	}

	match := timeleftRegex.FindStringSubmatch(reply)
	if match == nil {
		return nil
	}

	var remaining time.Duration
	if match[1] != "" {
		hours, _ := strconv.Atoi(match[1])
		remaining += time.Duration(hours) * time.Hour
	}
	minutes, _ := strconv.Atoi(match[2])
	seconds, _ := strconv.Atoi(match[3])
	remaining += time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second

	tl := &domain.TimeLeft{Remaining: remaining}
	if match[4] != "" {
		tl.Rounds, _ = strconv.Atoi(match[4])
	}
	return tl
}

// parseNextMap decodes the nextmap reply: pending vote or concrete map.
func parseNextMap(reply string) *domain.NextMap {
	if pendingVoteRegex.MatchString(reply) {
		return &domain.NextMap{PendingVote: true}
	}
	if match := nextMapRegex.FindStringSubmatch(reply); match != nil {
		return &domain.NextMap{Map: match[1]}
	}
	return nil
}
