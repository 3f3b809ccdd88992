package ingress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFrame assembles a telemetry datagram in the source engine remote
// log format.
func buildFrame(password, timestamp, line string) []byte {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if password != "" {
		data = append(data, packetSecret)
		data = append(data, password...)
		data = append(data, 0)
	} else {
		data = append(data, packetPlain)
	}
	data = append(data, terminatorL, ' ', ' ')
	data = append(data, timestamp...)
	data = append(data, ": "...)
	data = append(data, line...)
	data = append(data, "\r\n"...)
	return data
}

func TestDecodeFrame(t *testing.T) {
	raw := `"Scout<7><[U:1:111]><Red>" say "need a dispenser here"`
	data := buildFrame("hunter2", "07/05/2026 - 21:13:02", raw)

	f, err := decodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", f.password)
	assert.Equal(t, raw, f.line)
	assert.Equal(t, time.Date(2026, 7, 5, 21, 13, 2, 0, time.UTC), f.timestamp)
}

func TestDecodeFrameNoPassword(t *testing.T) {
	data := buildFrame("", "01/02/2026 - 03:04:05", `Started map "ctf_2fort"`)

	f, err := decodeFrame(data)
	require.NoError(t, err)
	assert.Empty(t, f.password)
	assert.Equal(t, `Started map "ctf_2fort"`, f.line)
}

func TestDecodeFrameRejects(t *testing.T) {
	valid := buildFrame("pw", "07/05/2026 - 21:13:02", "x")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"fifteen bytes", make([]byte, 15)},
		{"bad magic", append([]byte{0xFF, 0xFF, 0xFF, 0x00}, valid[4:]...)},
		{"unknown packet type", append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x41}, valid[5:]...)},
		{"unterminated password", []byte("\xff\xff\xff\xffSpassword-without-nul")},
		{"garbage timestamp", buildFrame("pw", "xx/xx/xxxx - xx:xx:xx", "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrame(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestDecodeFrameMinimumLength(t *testing.T) {
	// Exactly at the minimum the envelope is parsed, not rejected for
	// length.
	data := make([]byte, 15)
	_, err := decodeFrame(data)
	assert.ErrorContains(t, err, "too short")
}
