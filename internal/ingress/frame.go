package ingress

import (
	"bytes"
	"fmt"
	"time"
)

// Source remote log datagram framing.
const (
	headerMagic0 = 0xFF
	packetSecret = 0x53 // 'S', password present
	packetPlain  = 0x52 // 'R', no password
	terminatorL  = 0x4C // 'L'

	// minFrameLen is the smallest datagram that can carry a header and
	// a non-empty payload.
	minFrameLen = 16

	timestampLayout = "01/02/2006 - 15:04:05"
)

// frame is one decoded telemetry datagram.
type frame struct {
	password  string
	timestamp time.Time
	line      string
}

// decodeFrame validates the datagram envelope and extracts the event
// line and its wall-clock timestamp. Frames that do not match the
// magic bytes or the length envelope are rejected.
func decodeFrame(data []byte) (frame, error) {
	var f frame

	if len(data) < minFrameLen {
		return f, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	for i := 0; i < 4; i++ {
		if data[i] != headerMagic0 {
			return f, fmt.Errorf("bad magic header")
		}
	}

	i := 4
	switch data[i] {
	case packetSecret:
		i++
		nul := bytes.IndexByte(data[i:], 0)
		if nul < 0 {
			return f, fmt.Errorf("unterminated password")
		}
		f.password = string(data[i : i+nul])
		i += nul + 1
	case packetPlain:
		i++
	default:
		return f, fmt.Errorf("unknown packet type 0x%02X", data[i])
	}

	if i >= len(data) || data[i] != terminatorL {
		return f, fmt.Errorf("missing string terminator")
	}
	i++

	// Two-byte gap between the terminator and the timestamp.
	i += 2
	if i+len(timestampLayout) >= len(data) {
		return f, fmt.Errorf("frame truncated before timestamp")
	}

	ts, err := time.Parse(timestampLayout, string(data[i:i+len(timestampLayout)]))
	if err != nil {
		return f, fmt.Errorf("parsing timestamp: %w", err)
	}
	f.timestamp = ts.UTC()
	i += len(timestampLayout)

	// ": " separator after the timestamp.
	for i < len(data) && (data[i] == ':' || data[i] == ' ') {
		i++
	}

	line := data[i:]
	line = bytes.TrimRight(line, "\r\n\x00")
	f.line = string(line)

	return f, nil
}
