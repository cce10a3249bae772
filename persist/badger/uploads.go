package badger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aloksahay/fairbnb-sub000/gateway"
	"github.com/aloksahay/fairbnb-sub000/merkle"
	"github.com/dgraph-io/badger/v4"
)

// AddUpload records a deposited payload, keyed by its root. Depositing the
// same payload again overwrites the previous record.
func (s *Store) AddUpload(record gateway.UploadRecord) error {
	buf, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(record.Root[:], buf)
	})
}

// Upload returns the record of the payload addressed by root.
func (s *Store) Upload(root merkle.Root) (record gateway.UploadRecord, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(root[:])
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return gateway.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	return
}

// Uploads returns a snapshot of all upload records, most recent first.
func (s *Store) Uploads() (records []gateway.UploadRecord, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record gateway.UploadRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal record %x: %w", it.Item().Key(), err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadedAt.After(records[j].UploadedAt)
	})
	return records, nil
}
