// Package session stores durable credential material for connected accounts.
//
// Files are content-addressed by a keyed hash of the account ID rather than
// the raw ID, so session filenames cannot be predicted without the store key.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soyeahso/autoreply/internal/logging"
)

// ErrNotFound is returned when no session material exists for an account.
var ErrNotFound = errors.New("session: material not found")

// Material is the credential blob the protocol link needs to resume a session.
type Material struct {
	AccountID   string          `json:"accountId"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Store is a file-backed session material store.
type Store struct {
	dir string
	key []byte
	log *logging.Logger
}

// NewStore creates a store rooted at dir. key is the HMAC key used to derive
// filenames; it must not be empty.
func NewStore(dir string, key []byte, log *logging.Logger) (*Store, error) {
	if len(key) == 0 {
		return nil, errors.New("session: empty derivation key")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: creating dir: %w", err)
	}
	return &Store{dir: dir, key: key, log: log.Sub("session")}, nil
}

// Create allocates fresh material for an account, overwriting any prior file.
func (s *Store) Create(accountID string) (*Material, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("session: generating seed: %w", err)
	}

	now := time.Now().UTC()
	m := &Material{
		AccountID:   accountID,
		Credentials: mustJSON(map[string]string{"seed": hex.EncodeToString(seed)}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.write(accountID, m); err != nil {
		return nil, err
	}
	s.log.Info().Str("account", accountID).Msg("session material created")
	return m, nil
}

// Load reads the material for an account. Returns ErrNotFound when absent.
func (s *Store) Load(accountID string) (*Material, error) {
	data, err := os.ReadFile(s.path(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session: reading material: %w", err)
	}
	var m Material
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("session: parsing material: %w", err)
	}
	return &m, nil
}

// LoadOrCreate returns existing material or creates fresh material.
func (s *Store) LoadOrCreate(accountID string) (*Material, error) {
	m, err := s.Load(accountID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.Create(accountID)
}

// Update rewrites the stored material, bumping UpdatedAt.
func (s *Store) Update(m *Material) error {
	m.UpdatedAt = time.Now().UTC()
	return s.write(m.AccountID, m)
}

// Delete irreversibly removes the material for an account. Deleting material
// that does not exist is not an error.
func (s *Store) Delete(accountID string) error {
	err := os.Remove(s.path(accountID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: deleting material: %w", err)
	}
	if err == nil {
		s.log.Info().Str("account", accountID).Msg("session material deleted")
	}
	return nil
}

// Exists reports whether material is present for an account.
func (s *Store) Exists(accountID string) bool {
	_, err := os.Stat(s.path(accountID))
	return err == nil
}

// path derives the file path from the keyed hash of the account ID.
func (s *Store) path(accountID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(accountID))
	return filepath.Join(s.dir, hex.EncodeToString(mac.Sum(nil))+".json")
}

func (s *Store) write(accountID string, m *Material) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("session: encoding material: %w", err)
	}
	if err := os.WriteFile(s.path(accountID), data, 0o600); err != nil {
		return fmt.Errorf("session: writing material: %w", err)
	}
	return nil
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
