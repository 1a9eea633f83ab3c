// Package ticketcache keeps issued PVE login tickets on disk so short-lived
// commands can reuse them until they expire.
package ticketcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marcus-qen/pvego/internal/access"
	"github.com/marcus-qen/pvego/internal/session"
)

// DefaultLifetime stays under the two hours a PVE ticket is valid for.
const DefaultLifetime = 110 * time.Minute

var (
	ErrNotFound = errors.New("ticket not cached")
	ErrExpired  = errors.New("cached ticket expired")
)

// Entry is one cached ticket.
type Entry struct {
	Ticket              string    `yaml:"ticket"`
	CSRFPreventionToken string    `yaml:"csrf_prevention_token"`
	Username            string    `yaml:"username,omitempty"`
	CreatedAt           time.Time `yaml:"created_at"`
	ExpiresAt           time.Time `yaml:"expires_at"`
}

type fileFormat struct {
	Tickets map[string]Entry `yaml:"tickets"`
}

// Store is a YAML file of tickets keyed by login and endpoint.
type Store struct {
	mu       sync.Mutex
	path     string
	lifetime  time.Duration
	now       func() time.Time
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// New returns a store backed by path. The file is created on first Put.
func New(path string, lifetime time.Duration) *Store {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Store{path: path, lifetime: lifetime, now: time.Now, writeFile: os.WriteFile}
}

// Key identifies the login a ticket belongs to.
func Key(p session.Params) string {
	return p.UserAtRealm() + "@" + p.Hostname + ":" + strconv.Itoa(int(p.Port))
}

// Put caches t under key, replacing any previous entry.
func (s *Store) Put(key string, t *access.Ticket) (*Entry, error) {
	if t == nil || !t.Valid() {
		return nil, errors.New("refusing to cache an incomplete ticket")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	entry := Entry{
		Ticket:              t.GetTicket(),
		CSRFPreventionToken: t.GetCSRFPreventionToken(),
		Username:            t.GetUsername(),
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.lifetime),
	}
	f.Tickets[key] = entry
	if err := s.write(f); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Get returns the cached ticket for key. Expired entries are removed; if
// that removal cannot be written the returned error wraps both ErrExpired
// and the write failure.
func (s *Store) Get(key string) (*access.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}
	entry, ok := f.Tickets[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().UTC().Before(entry.ExpiresAt) {
		delete(f.Tickets, key)
		if err := s.write(f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExpired, err)
		}
		return nil, ErrExpired
	}
	return access.RestoreTicket(entry.Ticket, entry.CSRFPreventionToken, entry.Username), nil
}

// Delete removes the entry for key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := f.Tickets[key]; !ok {
		return nil
	}
	delete(f.Tickets, key)
	return s.write(f)
}

// Cleanup deletes expired entries and returns how many were removed.
func (s *Store) Cleanup() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	n := 0
	for key, entry := range f.Tickets {
		if !now.Before(entry.ExpiresAt) {
			delete(f.Tickets, key)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.write(f); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) read() (fileFormat, error) {
	f := fileFormat{Tickets: map[string]Entry{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read ticket cache: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse ticket cache: %w", err)
	}
	if f.Tickets == nil {
		f.Tickets = map[string]Entry{}
	}
	return f, nil
}

func (s *Store) write(f fileFormat) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create ticket cache dir: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal ticket cache: %w", err)
	}
	if err := s.writeFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write ticket cache: %w", err)
	}
	return nil
}
