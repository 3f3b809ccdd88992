// Package rcon maintains the administrative command channel to a game
// server. Each server gets one Session; calls are serialized and the
// underlying connection is re-established transparently after transport
// failures.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/gorcon/rcon"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ernie/fortress-ops/internal/domain"
)

const dialTimeout = 5 * time.Second

// convarRegex matches replies of the form "name" = "value" (flag and
// help lines that follow are ignored).
var convarRegex = regexp.MustCompile(`^"[^"]+" = "([^"]*)"`)

// Session is an exclusive command channel to one server. The zero value
// is not usable; create with NewSession. The connection is dialed lazily
// on first use.
type Session struct {
	address  string
	password string

	mu   sync.Mutex
	conn *rcon.Conn

	// Reconnect attempts are rate limited so a dead server does not
	// turn every caller into a dial storm.
	redial *rate.Limiter

	cacheMu     sync.Mutex
	cachedState *domain.GameState
	cachedAt    time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewSession creates a session for the given server address
func NewSession(address, password string) *Session {
	return &Session{
		address:  address,
		password: password,
		redial:   rate.NewLimiter(rate.Every(2*time.Second), 3),
		now:      time.Now,
	}
}

// Address returns the server address this session talks to
func (s *Session) Address() string {
	return s.address
}

// Run sends a command and returns the trimmed reply. The session lock
// is held for the full duration of the call. On any transport failure
// the session reconnects once and the original call is reported as
// failed; the caller decides whether to retry.
func (s *Session) Run(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(ctx, cmd)
}

func (s *Session) runLocked(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("command %q on %s: %w: %v", cmd, s.address, domain.ErrTimeout, err)
	}

	if s.conn == nil {
		if err := s.reconnectLocked(); err != nil {
			return "", err
		}
	}

	reply, err := s.conn.Execute(cmd)
	if err != nil {
		log.Debug().Err(err).Str("server", s.address).Str("command", cmd).Msg("RCON command failed, reconnecting")
		if rerr := s.reconnectLocked(); rerr != nil {
			log.Warn().Err(rerr).Str("server", s.address).Msg("RCON reconnect failed")
		}
		return "", fmt.Errorf("executing %q on %s: %w: %v", cmd, s.address, domain.ErrTransport, err)
	}

	return reply, nil
}

// Reconnect drops the current connection and performs a fresh handshake
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.reconnectLocked()
}

func (s *Session) reconnectLocked() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	if !s.redial.Allow() {
		return fmt.Errorf("dialing %s: %w: reconnect rate exceeded", s.address, domain.ErrTransport)
	}

	conn, err := rcon.Dial(s.address, s.password, rcon.SetDialTimeout(dialTimeout), rcon.SetDeadline(dialTimeout))
	if err != nil {
		if errors.Is(err, rcon.ErrAuthFailed) {
			return fmt.Errorf("authenticating to %s: %w", s.address, domain.ErrAuth)
		}
		return fmt.Errorf("dialing %s: %w: %v", s.address, domain.ErrTransport, err)
	}

	s.conn = conn
	return nil
}

// Close tears down the connection if one is open
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// Convar issues the convar name as a command and parses the quoted
// value out of the reply.
func (s *Session) Convar(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convarLocked(ctx, name)
}

func (s *Session) convarLocked(ctx context.Context, name string) (string, error) {
	reply, err := s.runLocked(ctx, name)
	if err != nil {
		return "", err
	}
	match := convarRegex.FindStringSubmatch(reply)
	if match == nil {
		return "", fmt.Errorf("convar %s on %s: %w: %q", name, s.address, domain.ErrProtocol, firstLine(reply))
	}
	return match[1], nil
}

// statusCacheTTL bounds how stale a cached snapshot may be. Status
// queries are expensive on busy servers and callers poll aggressively.
const statusCacheTTL = 4 * time.Second

// Status returns a snapshot of the server state, serving a cached copy
// if one newer than statusCacheTTL exists. The freshness check uses the
// monotonic clock.
func (s *Session) Status(ctx context.Context) (domain.GameState, error) {
	s.cacheMu.Lock()
	if s.cachedState != nil && s.now().Sub(s.cachedAt) < statusCacheTTL {
		state := *s.cachedState
		s.cacheMu.Unlock()
		return state, nil
	}
	s.cacheMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	statusReply, err := s.runLocked(ctx, "status")
	if err != nil {
		return domain.GameState{}, err
	}
	timeReply, err := s.runLocked(ctx, "timeleft; nextmap")
	if err != nil {
		return domain.GameState{}, err
	}
	maxPlayers, err := s.convarLocked(ctx, "sv_visiblemaxplayers")
	if err != nil {
		return domain.GameState{}, err
	}

	state, err := parseGameState(statusReply, timeReply, maxPlayers)
	if err != nil {
		return domain.GameState{}, fmt.Errorf("parsing status of %s: %w", s.address, err)
	}

	s.cacheMu.Lock()
	s.cachedState = &state
	s.cachedAt = s.now()
	s.cacheMu.Unlock()

	return state, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	return s
}
