package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"vcpsim/types"
)

const (
	tagPrefix      = "tag/"
	listVersionKey = "local_list_version"
)

// AuthStore keeps the authorization cache and the local authorization list of
// one simulated charge point. Entries survive process restarts, the way a real
// station keeps its list through a reboot.
type AuthStore struct {
	db *badger.DB
}

func Open(dir, chargePointId string) (*AuthStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, chargePointId))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &AuthStore{db: db}, nil
}

func (s *AuthStore) Close() error {
	return s.db.Close()
}

// CacheTagInfo stores the authorization outcome for an idTag.
func (s *AuthStore) CacheTagInfo(idTag string, info *types.IdTagInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tagPrefix+idTag), data)
	})
}

// TagInfo returns the cached authorization for an idTag, or nil when unknown.
func (s *AuthStore) TagInfo(idTag string) (*types.IdTagInfo, error) {
	var info *types.IdTagInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tagPrefix + idTag))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			info = &types.IdTagInfo{}
			return json.Unmarshal(val, info)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return info, err
}

func (s *AuthStore) RemoveTag(idTag string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(tagPrefix + idTag))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ListVersion reports the stored local list version, 0 when no list was ever sent.
func (s *AuthStore) ListVersion() int {
	version := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(listVersionKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			version, _ = strconv.Atoi(string(val))
			return nil
		})
	})
	return version
}

// Entry is one idTag with its authorization, as carried by a SendLocalList.
type Entry struct {
	IdTag string
	Info  *types.IdTagInfo
}

// ApplyLocalList installs a full or differential local authorization list.
// A full update replaces every stored tag; a differential update upserts the
// carried tags and removes those without IdTagInfo.
func (s *AuthStore) ApplyLocalList(version int, full bool, entries []Entry) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if full {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			prefix := []byte(tagPrefix)
			var stale [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, key := range stale {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		for _, entry := range entries {
			key := []byte(tagPrefix + entry.IdTag)
			if entry.Info == nil {
				if err := txn.Delete(key); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				continue
			}
			data, err := json.Marshal(entry.Info)
			if err != nil {
				return err
			}
			if err = txn.Set(key, data); err != nil {
				return err
			}
		}
		return txn.Set([]byte(listVersionKey), []byte(strconv.Itoa(version)))
	})
}
