package journal

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/erain9/crossmatch/pkg/core"
)

var (
	lowerBound = []byte("order/")
	upperBound = []byte("order/~")
)

// Journal is an append-only pebble log of accepted inbound orders. On
// startup the whole log is replayed through the engine as RECOVERY, which
// rebuilds the books and trigger indexes without publishing events.
type Journal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

// Open opens (or creates) the journal at dir and positions the sequence
// counter after the last appended record.
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}

	j := &Journal{db: db}
	if err := j.restoreSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) restoreSeq() error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		j.seq.Store(seq)
	}
	return iter.Error()
}

// Append writes one accepted inbound order to the log.
func (j *Journal) Append(order core.Order) error {
	data, err := json.Marshal(&order)
	if err != nil {
		return fmt.Errorf("failed to marshal journal record: %w", err)
	}
	return j.db.Set(keyFor(j.seq.Add(1)), data, pebble.NoSync)
}

// Replay walks the log in append order. Unreadable records abort the
// replay, a half written book is worse than a failed startup.
func (j *Journal) Replay(fn func(order core.Order) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: lowerBound,
		UpperBound: upperBound,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var order core.Order
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			return fmt.Errorf("failed to decode journal record %q: %w", iter.Key(), err)
		}
		if err := fn(order); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Len reports how many records have been appended so far.
func (j *Journal) Len() uint64 {
	return j.seq.Load()
}

// Sync flushes pending appends to disk.
func (j *Journal) Sync() error {
	return j.db.Flush()
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("order/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), "order/%d", &seq)
	return seq, err
}
