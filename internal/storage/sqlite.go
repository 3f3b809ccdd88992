package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ernie/fortress-ops/internal/domain"
)

//go:embed schema.sql
var schema string

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string.
// The Z suffix ensures the Go sqlite driver parses it back as UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// parseTimestamp reads a TEXT column written by formatTimestamp (or the
// matching strftime default in the schema) back into a time.Time.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05Z", s)
}

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Seederboard methods ---

// SeederEntry is one row of the seeding leaderboard
type SeederEntry struct {
	SteamID       string `json:"steam_id"`
	SecondsSeeded int64  `json:"seconds_seeded"`
}

// AddSeederSeconds adds pending seeding seconds for a batch of players in
// one transaction. Existing counters are incremented, new players inserted.
func (s *Store) AddSeederSeconds(ctx context.Context, pending map[string]int64) error {
	if len(pending) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO seederboard (steamid, seconds_seeded)
		VALUES (?, ?)
		ON CONFLICT(steamid) DO UPDATE SET
			seconds_seeded = seconds_seeded + excluded.seconds_seeded
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for steamID, seconds := range pending {
		if seconds <= 0 {
			continue
		}
		if _, err := stmt.ExecContext(ctx, steamID, seconds); err != nil {
			return fmt.Errorf("upserting %s: %w: %v", steamID, domain.ErrPersistence, err)
		}
	}

	return tx.Commit()
}

// GetSeederSeconds returns the cumulative seeded seconds for one player
func (s *Store) GetSeederSeconds(ctx context.Context, steamID string) (int64, error) {
	var seconds int64
	err := s.db.QueryRowContext(ctx, `
		SELECT seconds_seeded FROM seederboard WHERE steamid = ?
	`, steamID).Scan(&seconds)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seconds, err
}

// TopSeeders returns the seeding leaderboard ordered by total seconds
func (s *Store) TopSeeders(ctx context.Context, limit int) ([]SeederEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT steamid, seconds_seeded FROM seederboard
		ORDER BY seconds_seeded DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SeederEntry
	for rows.Next() {
		var e SeederEntry
		if err := rows.Scan(&e.SteamID, &e.SecondsSeeded); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Domination methods ---

// DominationEntry is one row of the domination ledger
type DominationEntry struct {
	LtSteamID string `json:"lt_steam_id"`
	GtSteamID string `json:"gt_steam_id"`
	Score     int64  `json:"score"`
}

// AddDomination adds delta to the signed score of a canonical pair,
// inserting the row if it does not exist. Returns the stored score.
func (s *Store) AddDomination(ctx context.Context, ltSteamID, gtSteamID string, delta int64) (int64, error) {
	var score int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO domination (lt_steamid, gt_steamid, score)
		VALUES (?, ?, ?)
		ON CONFLICT(lt_steamid, gt_steamid) DO UPDATE SET
			score = score + excluded.score
		RETURNING score
	`, ltSteamID, gtSteamID, delta).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("upserting domination: %w: %v", domain.ErrPersistence, err)
	}
	return score, nil
}

// GetDomination returns the stored score for a canonical pair (0 if absent)
func (s *Store) GetDomination(ctx context.Context, ltSteamID, gtSteamID string) (int64, error) {
	var score int64
	err := s.db.QueryRowContext(ctx, `
		SELECT score FROM domination WHERE lt_steamid = ? AND gt_steamid = ?
	`, ltSteamID, gtSteamID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return score, err
}

// TopDominations returns the pairs with the largest absolute score
func (s *Store) TopDominations(ctx context.Context, limit int) ([]DominationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lt_steamid, gt_steamid, score FROM domination
		ORDER BY ABS(score) DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []DominationEntry
	for rows.Next() {
		var e DominationEntry
		if err := rows.Scan(&e.LtSteamID, &e.GtSteamID, &e.Score); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Chat log methods ---

// ChatMessage is one archived chat line
type ChatMessage struct {
	Server  string    `json:"server"`
	SteamID string    `json:"steam_id"`
	Name    string    `json:"name"`
	Message string    `json:"message"`
	SaidAt  time.Time `json:"said_at"`
}

// InsertChatMessages inserts a batch of chat lines in one transaction
func (s *Store) InsertChatMessages(ctx context.Context, msgs []ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chat_log (server, steamid, name, message, said_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.Server, m.SteamID, m.Name, m.Message, formatTimestamp(m.SaidAt)); err != nil {
			return fmt.Errorf("inserting chat line: %w: %v", domain.ErrPersistence, err)
		}
	}

	return tx.Commit()
}

// --- Link code methods ---

// LinkCode represents a pending account link code
type LinkCode struct {
	Code       string
	ExternalID string
	CreatedAt  time.Time
}

// LinkCodeTTL is how long an issued code stays redeemable.
const LinkCodeTTL = 10 * time.Minute

// ExpiresAt is when the code stops being redeemable
func (l *LinkCode) ExpiresAt() time.Time {
	return l.CreatedAt.Add(LinkCodeTTL)
}

// linkCodeAlphabet omits the ambiguous I and 0 (25 letters + 9 digits).
const linkCodeAlphabet = "ABCDEFGHJKLMNOPQRSTUVWXYZ123456789"

// generateLinkCode creates a secure 6-character code
func generateLinkCode() (string, error) {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(linkCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = linkCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// CreateLinkCode generates and stores a new link code for an external id
func (s *Store) CreateLinkCode(ctx context.Context, externalID string) (*LinkCode, error) {
	now := time.Now().UTC()

	// Ensure uniqueness by retrying on conflict
	for attempts := 0; attempts < 5; attempts++ {
		code, err := generateLinkCode()
		if err != nil {
			return nil, fmt.Errorf("generating code: %w", err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO link_codes (code, external_id, created_at)
			VALUES (?, ?, ?)
		`, code, externalID, formatTimestamp(now))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				continue
			}
			return nil, err
		}
		return &LinkCode{Code: code, ExternalID: externalID, CreatedAt: now}, nil
	}
	return nil, fmt.Errorf("failed to generate unique code after 5 attempts")
}

// ConsumeLinkCode atomically redeems an unexpired code, returning the
// external id it was issued for. A code can be consumed at most once.
func (s *Store) ConsumeLinkCode(ctx context.Context, code string) (string, error) {
	cutoff := time.Now().UTC().Add(-LinkCodeTTL)

	var externalID string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM link_codes
		WHERE code = ? AND created_at > ?
		RETURNING external_id
	`, strings.ToUpper(code), formatTimestamp(cutoff)).Scan(&externalID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("code invalid or expired")
	}
	if err != nil {
		return "", err
	}
	return externalID, nil
}

// CleanupExpiredLinkCodes removes codes older than the expiry window
func (s *Store) CleanupExpiredLinkCodes(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-LinkCodeTTL)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM link_codes WHERE created_at <= ?
	`, formatTimestamp(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// --- Operator methods ---

// Operator is an account allowed to use the HTTP API
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// CreateOperator creates a new operator account
func (s *Store) CreateOperator(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (username, password_hash, is_admin)
		VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	return err
}

// GetOperatorByUsername returns an operator by username
func (s *Store) GetOperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	var op Operator
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM operators WHERE username = ?
	`, username).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.IsAdmin, &createdAt)
	if err != nil {
		return nil, err
	}
	if op.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %q: %w", username, err)
	}
	return &op, nil
}

// DeleteOperator removes an operator account
func (s *Store) DeleteOperator(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM operators WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("operator %q not found", username)
	}
	return nil
}

// ListOperators returns all operator accounts
func (s *Store) ListOperators(ctx context.Context) ([]Operator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at FROM operators ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []Operator
	for rows.Next() {
		var op Operator
		var createdAt string
		if err := rows.Scan(&op.ID, &op.Username, &op.PasswordHash, &op.IsAdmin, &createdAt); err != nil {
			return nil, err
		}
		if op.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for %q: %w", op.Username, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// UpdateOperatorPassword replaces an operator's password hash
func (s *Store) UpdateOperatorPassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE operators SET password_hash = ? WHERE username = ?
	`, passwordHash, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("operator %q not found", username)
	}
	return nil
}
