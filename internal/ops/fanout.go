// Package ops implements the operator-facing behaviours: command
// fan-out across servers and the player-count presence publisher.
package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/registry"
)

// fanoutDeadline bounds how long the aggregate waits for stragglers.
// Servers that miss it are silently dropped from the output.
const fanoutDeadline = 2500 * time.Millisecond

// checkmark marks servers that accepted a command with an empty reply.
const checkmark = ":white_check_mark:"

type fanoutResult struct {
	glyph string
	line  string
}

// FanOut runs one command against every given server in parallel and
// aggregates the replies into a newline-delimited string sorted by
// display glyph. Per-server failures become error lines; servers that
// do not answer before the deadline are omitted. The call itself never
// fails.
func FanOut(ctx context.Context, servers []*registry.Handle, command string) string {
	requestID := uuid.NewString()
	log.Info().Str("request", requestID).Str("command", command).Int("servers", len(servers)).Msg("Fanning out command")

	ctx, cancel := context.WithTimeout(ctx, fanoutDeadline)
	defer cancel()

	results := make(chan fanoutResult, len(servers))
	for _, handle := range servers {
		go func(h *registry.Handle) {
			reply, err := h.Rcon.Run(ctx, command)
			switch {
			case err != nil:
				log.Warn().Str("request", requestID).Str("server", h.Desc.Address).Err(err).Msg("Fan-out target failed")
				results <- fanoutResult{h.Desc.Glyph, fmt.Sprintf("%s %v", h.Desc.Glyph, err)}
			case strings.TrimSpace(reply) == "":
				results <- fanoutResult{h.Desc.Glyph, fmt.Sprintf("%s %s", h.Desc.Glyph, checkmark)}
			default:
				results <- fanoutResult{h.Desc.Glyph, fmt.Sprintf("%s `%s`", h.Desc.Glyph, strings.TrimSpace(reply))}
			}
		}(handle)
	}

	var collected []fanoutResult
	for range servers {
		select {
		case res := <-results:
			collected = append(collected, res)
		case <-ctx.Done():
			log.Warn().Str("request", requestID).Int("answered", len(collected)).Int("expected", len(servers)).Msg("Fan-out deadline reached")
			return render(collected)
		}
	}
	return render(collected)
}

func render(results []fanoutResult) string {
	sort.Slice(results, func(i, j int) bool {
		return results[i].glyph < results[j].glyph
	})

	lines := make([]string, len(results))
	for i, res := range results {
		lines[i] = res.line
	}
	return strings.Join(lines, "\n")
}
