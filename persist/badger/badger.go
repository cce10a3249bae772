// Package badger persists upload records in a badger key-value store.
package badger

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

type (
	// A Store is a badger-backed store.
	Store struct {
		db  *badger.DB
		log *zap.Logger
	}

	// logAdapter forwards badger's internal logging to zap.
	logAdapter struct {
		log *zap.Logger
	}
)

var _ badger.Logger = logAdapter{}

func (l logAdapter) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l logAdapter) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// badger's info output is routine compaction chatter
func (l logAdapter) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l logAdapter) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenDatabase opens a badger database at the given path.
func OpenDatabase(path string, log *zap.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(logAdapter{log: log}))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}
