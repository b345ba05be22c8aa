package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// seenTTL is how long processed update IDs are retained. Telegram redelivers
// an unacknowledged update for roughly a day; 48h comfortably covers that
// window without growing the store forever.
const seenTTL = 48 * time.Hour

// DedupStore records which transport update IDs have already been processed,
// backed by BadgerDB. It makes update handling idempotent: when Telegram
// redelivers an update (because an earlier acknowledgement was lost), the
// dispatcher consults this store and skips the duplicate.
type DedupStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewDedupStore opens (or creates) the BadgerDB at dbPath.
func NewDedupStore(dbPath string, logger logrus.FieldLogger) (*DedupStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}

	return &DedupStore{
		db:  db,
		log: logger.WithField("component", "dedup_store"),
	}, nil
}

// Close closes the underlying BadgerDB.
func (s *DedupStore) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	return nil
}

func updateKey(updateID int64) []byte {
	return []byte(fmt.Sprintf("update:%d", updateID))
}

// MarkSeen records updateID and reports whether this is the first time it
// has been seen. The check and the write happen in one transaction, so two
// deliveries of the same update cannot both observe "first".
func (s *DedupStore) MarkSeen(updateID int64) (first bool, err error) {
	key := updateKey(updateID)

	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(key)
		if getErr == nil {
			return nil // already processed
		}
		if getErr != badger.ErrKeyNotFound {
			return getErr
		}
		first = true
		e := badger.NewEntry(key, []byte{1}).WithTTL(seenTTL)
		return txn.SetEntry(e)
	})

	if err != nil {
		s.log.WithError(err).WithField("update_id", updateID).Error("Failed to record update ID")
		return false, fmt.Errorf("failed to record update %d: %w", updateID, err)
	}

	if !first {
		s.log.WithField("update_id", updateID).Warn("Duplicate update delivery detected")
	}
	return first, nil
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
