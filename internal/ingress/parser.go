package ingress

import (
	"regexp"
	"strconv"

	"github.com/ernie/fortress-ops/internal/domain"
)

// Telemetry event grammars. The player term inside quotes is
// Name<uid><[U:…]><Team>; team may be empty before assignment.
var (
	playerTerm = `"(.+?)<(\d+)><(\[.+?\])><(.*?)>"`

	chatRegex        = regexp.MustCompile(`^` + playerTerm + ` say "(.*)"$`)
	connectedRegex   = regexp.MustCompile(`^` + playerTerm + ` connected, address "([\d.]+):(\d+)"$`)
	disconnectRegex  = regexp.MustCompile(`^` + playerTerm + ` disconnected \(reason "(.*)"\)$`)
	joinedTeamRegex  = regexp.MustCompile(`^` + playerTerm + ` joined team "(.+)"$`)
	mapStartRegex    = regexp.MustCompile(`^Started map "(.+?)"`)
	interPlayerRegex = regexp.MustCompile(`^` + playerTerm + ` triggered "(.+?)" against ` + playerTerm + `$`)
)

// parsePlayerTerm builds a Player from the four submatches of the
// player term, starting at match[offset].
func parsePlayerTerm(match []string, offset int) domain.Player {
	uid, _ := strconv.ParseUint(match[offset+1], 10, 32)
	return domain.Player{
		Name:    match[offset],
		UserID:  uint(uid),
		SteamID: match[offset+2],
		Team:    match[offset+3],
	}
}

// ParseLine maps a raw event line to exactly one event variant. The
// function is total: unrecognized input yields the Unknown kind, never
// an error.
func ParseLine(line string) domain.Event {
	event := domain.Event{Kind: domain.EventUnknown, Raw: line}

	if match := chatRegex.FindStringSubmatch(line); match != nil {
		event.Kind = domain.EventChat
		event.Chat = &domain.ChatEvent{
			From: parsePlayerTerm(match, 1),
			Text: match[5],
		}
		return event
	}

	if match := connectedRegex.FindStringSubmatch(line); match != nil {
		port, _ := strconv.ParseUint(match[6], 10, 16)
		event.Kind = domain.EventConnected
		event.Connected = &domain.ConnectedEvent{
			Player: parsePlayerTerm(match, 1),
			IP:     match[5],
			Port:   uint16(port),
		}
		return event
	}

	if match := disconnectRegex.FindStringSubmatch(line); match != nil {
		event.Kind = domain.EventDisconnected
		event.Disconnected = &domain.DisconnectedEvent{
			Player: parsePlayerTerm(match, 1),
			Reason: match[5],
		}
		return event
	}

	if match := joinedTeamRegex.FindStringSubmatch(line); match != nil {
		event.Kind = domain.EventJoinedTeam
		event.JoinedTeam = &domain.JoinedTeamEvent{
			Player: parsePlayerTerm(match, 1),
			Team:   match[5],
		}
		return event
	}

	if match := mapStartRegex.FindStringSubmatch(line); match != nil {
		event.Kind = domain.EventMapStart
		event.MapStart = &domain.MapStartEvent{Map: match[1]}
		return event
	}

	if match := interPlayerRegex.FindStringSubmatch(line); match != nil {
		event.Kind = domain.EventInterPlayer
		event.InterPlayer = &domain.InterPlayerEvent{
			From:    parsePlayerTerm(match, 1),
			Action:  match[5],
			Against: parsePlayerTerm(match, 6),
		}
		return event
	}

	return event
}
