package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"

	"github.com/eleven-am/peermesh/internal/domain"
)

const (
	peerIDKey      = "session/peer-id"
	connectionsKey = "session/connections"
)

// SessionStore keeps the local peer identifier and the last session
// snapshot in badger so a restarted process can rejoin its mesh.
type SessionStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerSessionStore(dir string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("session store directory: %w", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}

	opts := badger.DefaultOptions(dir)
	return open(opts, logger)
}

// NewInMemorySessionStore keeps the session for the lifetime of the process
// only.
func NewInMemorySessionStore(logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*SessionStore, error) {
	logger = logger.With("component", "session-store")
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger-session")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	return &SessionStore{
		db:     db,
		logger: logger,
	}, nil
}

// LoadPeerID returns the stored local identifier, or "" when none was saved.
func (s *SessionStore) LoadPeerID() (string, error) {
	value, err := s.read(peerIDKey)
	if err != nil || value == nil {
		return "", err
	}
	return string(value), nil
}

func (s *SessionStore) SavePeerID(peerID string) error {
	if peerID == "" {
		return domain.ErrMissingIdentifier
	}
	return s.write(peerIDKey, []byte(peerID))
}

// LoadConnections returns the stored snapshot, or nil when none was saved.
func (s *SessionStore) LoadConnections() ([]domain.SessionEntry, error) {
	value, err := s.read(connectionsKey)
	if err != nil || value == nil {
		return nil, err
	}

	var entries []domain.SessionEntry
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return entries, nil
}

func (s *SessionStore) SaveConnections(entries []domain.SessionEntry) error {
	if entries == nil {
		entries = []domain.SessionEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return s.write(connectionsKey, data)
}

func (s *SessionStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close session database", "error", err)
		return err
	}
	return nil
}

func (s *SessionStore) read(key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (s *SessionStore) write(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}
