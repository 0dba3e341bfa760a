package bolt

import (
	"encoding/binary"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-shield/internal/shield/repos/trackerdata"
)

var (
	bucketData = []byte("datasets")
	bucketMeta = []byte("meta")

	keyTag   = []byte("tag")
	keySaved = []byte("saved")
	keySaves = []byte("saves")
)

// ErrEmptyTag is returned by Save when no version tag is given.
var ErrEmptyTag = errors.New("dataset tag must not be empty")

// boltStore implements trackerdata.Store using bbolt. It keeps the raw bytes
// of the latest dataset keyed by tag; older tags are removed on Save.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (trackerdata.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Save replaces the stored dataset with raw under tag in one transaction.
func (s *boltStore) Save(tag string, raw []byte, savedAt time.Time) error {
	if tag == "" {
		return ErrEmptyTag
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketData)
		meta := tx.Bucket(bucketMeta)

		var stale [][]byte
		if err := data.ForEach(func(k, _ []byte) error {
			if string(k) != tag {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := data.Delete(k); err != nil {
				return err
			}
		}
		if err := data.Put([]byte(tag), raw); err != nil {
			return err
		}

		saves := uint64(0)
		if v := meta.Get(keySaves); len(v) == 8 {
			saves = binary.BigEndian.Uint64(v)
		}
		if err := meta.Put(keySaves, u64(saves+1)); err != nil {
			return err
		}
		if err := meta.Put(keySaved, u64(uint64(savedAt.Unix()))); err != nil {
			return err
		}
		return meta.Put(keyTag, []byte(tag))
	})
}

// Latest returns the stored dataset, if any. The returned bytes are a copy.
func (s *boltStore) Latest() (string, []byte, bool, error) {
	var (
		tag string
		raw []byte
		ok  bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		t := tx.Bucket(bucketMeta).Get(keyTag)
		if len(t) == 0 {
			return nil
		}
		v := tx.Bucket(bucketData).Get(t)
		if v == nil {
			return nil
		}
		tag, raw, ok = string(t), append([]byte(nil), v...), true
		return nil
	})
	return tag, raw, ok, err
}

func (s *boltStore) Stats() trackerdata.StoreStats {
	st := trackerdata.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		st.Tag = string(meta.Get(keyTag))
		if v := meta.Get(keySaved); len(v) == 8 {
			st.SavedUnix = int64(binary.BigEndian.Uint64(v))
		}
		if v := meta.Get(keySaves); len(v) == 8 {
			st.Saves = binary.BigEndian.Uint64(v)
		}
		if st.Tag != "" {
			st.Bytes = uint64(len(tx.Bucket(bucketData).Get([]byte(st.Tag))))
		}
		return nil
	})
	return st
}

func u64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
