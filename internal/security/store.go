// Package security holds the pairing token and the approved-device list, and
// the request checks built on them.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// TokenPrefix marks ideremote pairing tokens.
const TokenPrefix = "ider_p_"

const schemaVersion = 1

// Device is an approved device.
type Device struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ApprovedAt time.Time `json:"approved_at"`
}

// Store persists the pairing token and the approved devices in SQLite.
// An empty path keeps everything in memory.
type Store struct {
	db   *sql.DB
	path string

	mu sync.Mutex
}

// DefaultStorePath returns the store location inside dataDir.
func DefaultStorePath(dataDir string) string {
	return filepath.Join(dataDir, "ideremote.db")
}

// OpenStore opens (and creates when needed) the store at path.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes
	// writers on disk.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout=5000"}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return err
	}

	var current int
	if err := db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&current); err != nil {
		current = 0
	}
	if current > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", current, schemaVersion)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS devices (
			device_id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			approved_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}

	_, err := db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`, schemaVersion)
	return err
}

// Path returns the database path, empty for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Token returns the pairing token, generating and persisting one on first
// use. The value is read from the database on every call so a rotation by
// another process sharing the file takes effect immediately.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.readToken()
	if err != nil || token != "" {
		return token, err
	}
	token, err = NewPairingToken()
	if err != nil {
		return "", err
	}
	// Another process may have generated one in the meantime; the stored
	// value wins.
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO metadata (key, value) VALUES ('pairing_token', ?)`, token); err != nil {
		return "", fmt.Errorf("save pairing token: %w", err)
	}
	return s.readToken()
}

func (s *Store) readToken() (string, error) {
	var token string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'pairing_token'").Scan(&token)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("load pairing token: %w", err)
	}
	return token, nil
}

// RegenerateToken replaces the pairing token and forgets every approved
// device.
func (s *Store) RegenerateToken() (string, error) {
	token, err := NewPairingToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES ('pairing_token', ?)`, token); err != nil {
		return "", fmt.Errorf("save pairing token: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM devices`); err != nil {
		return "", fmt.Errorf("clear devices: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	log.Info().Msg("pairing token regenerated, approved devices cleared")
	return token, nil
}

// IsTokenValid reports whether presented matches the current token. A blank
// token is never valid.
func (s *Store) IsTokenValid(presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return false
	}
	current, err := s.Token()
	if err != nil || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(current)) == 1
}

// IsDeviceApproved reports whether deviceID is on the approved list.
func (s *Store) IsDeviceApproved(deviceID string) bool {
	if deviceID == "" {
		return false
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM devices WHERE device_id = ?`, deviceID).Scan(&n)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("device lookup failed")
		return false
	}
	return n > 0
}

// ApproveDevice adds deviceID to the approved list. Approving an approved
// device only refreshes its name.
func (s *Store) ApproveDevice(deviceID, name string) error {
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("device id is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO devices (device_id, name, approved_at) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET name = CASE WHEN excluded.name = '' THEN devices.name ELSE excluded.name END`,
		deviceID, name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("approve device: %w", err)
	}
	return nil
}

// RevokeDevice removes deviceID from the approved list. It reports whether
// the device was approved.
func (s *Store) RevokeDevice(deviceID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM devices WHERE device_id = ?`, deviceID)
	if err != nil {
		return false, fmt.Errorf("revoke device: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ClearDevices forgets every approved device.
func (s *Store) ClearDevices() error {
	if _, err := s.db.Exec(`DELETE FROM devices`); err != nil {
		return fmt.Errorf("clear devices: %w", err)
	}
	return nil
}

// Devices returns the approved devices, oldest first.
func (s *Store) Devices() ([]Device, error) {
	rows, err := s.db.Query(`SELECT device_id, name, approved_at FROM devices ORDER BY approved_at, device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		var approvedAt int64
		if err := rows.Scan(&d.ID, &d.Name, &approvedAt); err != nil {
			return nil, err
		}
		d.ApprovedAt = time.UnixMilli(approvedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// NewPairingToken returns a fresh random pairing token.
func NewPairingToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate pairing token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
