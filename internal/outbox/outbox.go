// Package outbox is a durable FIFO of hub payloads that could not be delivered. It
// survives restarts so a node that loses the hub keeps its readings until the link
// comes back.
package outbox

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	"github.com/rs/zerolog/log"
)

var prefix = []byte("q/")

type Outbox struct {
	db  *badger.DB
	seq *badger.Sequence
	// Limit caps the queue length; the oldest payloads are dropped beyond it. Zero
	// means unbounded.
	Limit int
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Error().Msgf(f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Warn().Msgf(f, v...) }
func (badgerLogger) Infof(f string, v ...interface{})    { log.Debug().Msgf(f, v...) }
func (badgerLogger) Debugf(f string, v ...interface{})   { log.Trace().Msgf(f, v...) }

func Open(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Truncate = true
	opts.Logger = badgerLogger{}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	seq, err := db.GetSequence([]byte("seq"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open outbox sequence: %w", err)
	}
	log.Info().Str("dir", dir).Msg("Outbox opened")
	return &Outbox{db: db, seq: seq}, nil
}

func (o *Outbox) Close() error {
	if err := o.seq.Release(); err != nil {
		log.Warn().Err(err).Msg("Failed to release outbox sequence")
	}
	return o.db.Close()
}

func key(n uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], n)
	return k
}

// Push appends a payload to the tail of the queue.
func (o *Outbox) Push(payload []byte) error {
	n, err := o.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate outbox key: %w", err)
	}
	err = o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(n), payload)
	})
	if err != nil {
		return fmt.Errorf("failed to queue payload: %w", err)
	}
	if o.Limit > 0 {
		return o.trim()
	}
	return nil
}

type entry struct {
	key   []byte
	value []byte
}

// entries returns up to max queued payloads oldest first; max <= 0 returns all.
func (o *Outbox) entries(max int) ([]entry, error) {
	var out []entry
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, entry{key: item.KeyCopy(nil), value: v})
			if max > 0 && len(out) == max {
				break
			}
		}
		return nil
	})
	return out, err
}

func (o *Outbox) Len() (int, error) {
	n := 0
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (o *Outbox) remove(k []byte) error {
	return o.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (o *Outbox) trim() error {
	n, err := o.Len()
	if err != nil {
		return err
	}
	if n <= o.Limit {
		return nil
	}
	stale, err := o.entries(n - o.Limit)
	if err != nil {
		return err
	}
	for _, e := range stale {
		if err := o.remove(e.key); err != nil {
			return err
		}
	}
	log.Warn().Int("dropped", len(stale)).Msg("Outbox full, dropped oldest payloads")
	return nil
}

// Drain hands queued payloads to send oldest first, removing each one that is
// accepted. It stops at the first failure and returns how many were sent.
func (o *Outbox) Drain(send func(payload []byte) error) (int, error) {
	pending, err := o.entries(0)
	if err != nil {
		return 0, fmt.Errorf("failed to read outbox: %w", err)
	}
	sent := 0
	for _, e := range pending {
		if err := send(e.value); err != nil {
			return sent, err
		}
		if err := o.remove(e.key); err != nil {
			return sent, fmt.Errorf("failed to remove delivered payload: %w", err)
		}
		sent++
	}
	if sent > 0 {
		log.Info().Int("count", sent).Msg("Drained outbox")
	}
	return sent, nil
}
