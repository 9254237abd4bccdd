package plugin

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	Pt "github.com/maroda/pogo/types"
)

const (
	SettingsKeyV1 = "settings/v1"
	SettingsKeyV2 = "settings/v2"

	bouncePrefix = 'b'
)

// SettingsV1 is the first persisted schema.
// It kept the resting Z reading instead of a magnitude.
type SettingsV1 struct {
	Sensitivity float64
	BaselineZ   float64
	AudioMode   Pt.AudioMode
	AudioVolume float64
	GravityMode Pt.GravityMode
}

// BadgerStore keeps settings and the bounce history in one database
type BadgerStore struct {
	MU        sync.Mutex
	DB        *badger.DB
	BatchSize int
	Buffer    []*Pt.BounceRecord
}

func NewBadgerStore(path string, batchSize int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		slog.Error("BadgerStore failed to open database", slog.Any("Error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}

	slog.Info("BadgerStore opened",
		slog.String("path", path),
		slog.Int("batchSize", batchSize))

	return NewBadgerStoreWithDB(db, batchSize), nil
}

// NewBadgerStoreWithDB wraps an already open database
func NewBadgerStoreWithDB(db *badger.DB, batchSize int) *BadgerStore {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BadgerStore{
		DB:        db,
		BatchSize: batchSize,
		Buffer:    make([]*Pt.BounceRecord, 0, batchSize),
	}
}

////////// SETTINGS

// LoadSettings returns the current schema, migrating a v1 record on the way.
// ErrNotFound means nothing has ever been saved.
func (bs *BadgerStore) LoadSettings() (Pt.Settings, error) {
	var s Pt.Settings

	raw, err := bs.get(SettingsKeyV2)
	if err == nil {
		if err := decode(raw, &s); err != nil {
			slog.Error("BadgerStore failed to decode settings", slog.Any("Error", err))
			return s, fmt.Errorf("settings decode error: %w", err)
		}
		return s, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return s, fmt.Errorf("settings read error: %w", err)
	}

	raw, err = bs.get(SettingsKeyV1)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("settings read error: %w", err)
	}

	var old SettingsV1
	if err := decode(raw, &old); err != nil {
		slog.Error("BadgerStore failed to decode v1 settings", slog.Any("Error", err))
		return s, fmt.Errorf("settings decode error: %w", err)
	}
	s = MigrateSettingsV1(old)

	if err := bs.SaveSettings(s); err != nil {
		return s, err
	}
	if err := bs.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(SettingsKeyV1))
	}); err != nil {
		slog.Error("BadgerStore could not remove v1 settings", slog.Any("Error", err))
	}

	slog.Info("BadgerStore migrated settings",
		slog.String("from", SettingsKeyV1),
		slog.String("to", SettingsKeyV2),
		slog.Float64("baseline", s.BaselineMagnitude))
	return s, nil
}

// MigrateSettingsV1 carries a v1 record forward.
// A device calibrated flat reads gravity on Z alone, so |Z| is the magnitude.
func MigrateSettingsV1(old SettingsV1) Pt.Settings {
	return Pt.Settings{
		Sensitivity:       old.Sensitivity,
		BaselineMagnitude: math.Abs(old.BaselineZ),
		AudioMode:         old.AudioMode,
		AudioVolume:       old.AudioVolume,
		GravityMode:       old.GravityMode,
	}
}

func (bs *BadgerStore) SaveSettings(s Pt.Settings) error {
	v, err := encode(s)
	if err != nil {
		return fmt.Errorf("settings encode error: %w", err)
	}
	if err := bs.put(SettingsKeyV2, v); err != nil {
		slog.Error("BadgerStore failed to save settings", slog.Any("Error", err))
		return fmt.Errorf("settings write error: %w", err)
	}
	return nil
}

// SaveSettingsV1 writes the legacy schema, kept for migration tests and tooling
func (bs *BadgerStore) SaveSettingsV1(s SettingsV1) error {
	v, err := encode(s)
	if err != nil {
		return err
	}
	return bs.put(SettingsKeyV1, v)
}

func (bs *BadgerStore) get(key string) ([]byte, error) {
	var out []byte
	err := bs.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

func (bs *BadgerStore) put(key string, v []byte) error {
	return bs.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), v)
	})
}

////////// BOUNCES

// WriteBounce queues up a batch of bounces,
// when batchsize is reached, it calls WriteBatch with the new batch
func (bs *BadgerStore) WriteBounce(b *Pt.BounceRecord) error {
	bs.MU.Lock()
	defer bs.MU.Unlock()

	bs.Buffer = append(bs.Buffer, b)
	if len(bs.Buffer) >= bs.BatchSize {
		return bs.flushLocked()
	}
	return nil
}

// WriteBatch performs the key/value creation to be stored
// and actually calls BadgerDB to write the data
func (bs *BadgerStore) WriteBatch(bounces []*Pt.BounceRecord) error {
	wb := bs.DB.NewWriteBatch()
	defer wb.Cancel()

	for _, b := range bounces {
		v, err := encode(b)
		if err != nil {
			return fmt.Errorf("bounce encode error: %w", err)
		}
		if err := wb.Set(BounceKey(b), v); err != nil {
			slog.Error("BadgerStore failed to set key in batch",
				slog.Any("Error", err),
				slog.Int64("t", b.TimestampMs),
				slog.String("session", b.SessionID))
			return fmt.Errorf("write batch error: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		slog.Error("BadgerStore failed to flush batch", slog.Any("Error", err))
		return fmt.Errorf("batch flush error: %w", err)
	}
	return nil
}

// Flush is the public method that blocks,
// it sends data to WriteBatch and then clears the buffer
func (bs *BadgerStore) Flush() error {
	bs.MU.Lock()
	defer bs.MU.Unlock()
	return bs.flushLocked()
}

func (bs *BadgerStore) flushLocked() error {
	if len(bs.Buffer) == 0 {
		return nil
	}
	err := bs.WriteBatch(bs.Buffer)
	bs.Buffer = bs.Buffer[:0]
	return err
}

// Close returns a Flush error but still attempts to close
func (bs *BadgerStore) Close() error {
	slog.Info("BadgerStore closing, flushing buffer",
		slog.Int("bufferSize", len(bs.Buffer)))
	flushErr := bs.Flush()
	closeErr := bs.DB.Close()

	if flushErr != nil {
		slog.Error("BadgerStore failed to flush on close", slog.Any("Error", flushErr))
		return fmt.Errorf("flush failed, close may have failed: %w", flushErr)
	}
	if closeErr != nil {
		slog.Error("BadgerStore failed to close database", slog.Any("Error", closeErr))
		return fmt.Errorf("close failed: %w", closeErr)
	}

	slog.Info("BadgerStore closed successfully")
	return nil
}

func (bs *BadgerStore) Type() string { return "BadgerDB" }

// BounceKey is prefix + timestamp + count + first eight bytes of session,
// big endian so keys sort chronologically
func BounceKey(b *Pt.BounceRecord) []byte {
	key := make([]byte, 1+8+4+8)
	key[0] = bouncePrefix
	binary.BigEndian.PutUint64(key[1:9], uint64(b.TimestampMs))
	binary.BigEndian.PutUint32(key[9:13], uint32(b.Count))
	copy(key[13:], b.SessionID)
	return key
}

// QueryRange retrieves bounces with startMs <= t <= endMs, oldest first.
// A negative start is treated as zero, keys are unsigned.
func (bs *BadgerStore) QueryRange(startMs, endMs int64) ([]*Pt.BounceRecord, error) {
	var bounces []*Pt.BounceRecord
	if startMs < 0 {
		startMs = 0
	}

	seek := make([]byte, 9)
	seek[0] = bouncePrefix
	binary.BigEndian.PutUint64(seek[1:], uint64(startMs))

	err := bs.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{bouncePrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.Valid(); it.Next() {
			item := it.Item()
			if int64(binary.BigEndian.Uint64(item.Key()[1:9])) > endMs {
				break
			}

			err := item.Value(func(val []byte) error {
				var b Pt.BounceRecord
				if err := decode(val, &b); err != nil {
					slog.Error("BadgerStore failed to decode bounce", slog.Any("Error", err))
					return fmt.Errorf("bounce decode error: %w", err)
				}
				bounces = append(bounces, &b)
				return nil
			})
			if err != nil {
				return fmt.Errorf("item data error: %w", err)
			}
		}
		return nil
	})

	slog.Debug("BadgerStore QueryRange", slog.Int("count", len(bounces)))
	return bounces, err
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(v)
}
