package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"grievance/internal/complaint"
	"grievance/internal/logging"
)

var keyPrefix = []byte("complaint/")

// record is the value written to badger under complaint/<seq>. Seq preserves
// insertion order across restarts and keeps complaints that share an id apart.
type record struct {
	Seq       uint64              `json:"seq"`
	Complaint complaint.Complaint `json:"complaint"`
}

// Persistent is a Store that serves reads from memory and writes every
// change through to badger.
type Persistent struct {
	mem *Memory
	db  *badger.DB
	log logging.Logger

	mu   sync.Mutex        // orders memory and disk writes
	seq  map[string]uint64 // id -> seq of the newest complaint with that id
	next uint64
}

// OpenPersistent opens (or creates) a badger database at dir and loads the
// stored complaints. An empty dir opens an in-memory database.
func OpenPersistent(dir string, log logging.Logger) (*Persistent, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	p := &Persistent{mem: NewMemory(), db: db, log: log, seq: make(map[string]uint64)}
	if err := p.reload(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Persistent) reload() error {
	var recs []record
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var r record
				if err := json.Unmarshal(v, &r); err != nil {
					p.log.Warn("skipping unreadable complaint record", logging.F("key", string(it.Item().Key())), logging.Err(err))
					return nil
				}
				recs = append(recs, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load complaints: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq > recs[j].Seq })
	items := make([]complaint.Complaint, 0, len(recs))
	for _, r := range recs {
		items = append(items, r.Complaint)
		// Mutate targets the newest complaint with a given id.
		if _, ok := p.seq[r.Complaint.ID]; !ok {
			p.seq[r.Complaint.ID] = r.Seq
		}
		if r.Seq >= p.next {
			p.next = r.Seq + 1
		}
	}
	p.mem.load(items)
	p.log.Info("complaints loaded", logging.F("count", len(items)))
	return nil
}

func (p *Persistent) write(seq uint64, c complaint.Complaint) error {
	val, err := json.Marshal(record{Seq: seq, Complaint: c})
	if err != nil {
		return err
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(seq), val)
	})
}

func (p *Persistent) Insert(c complaint.Complaint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.insert(c)
}

func (p *Persistent) InsertIfAbsent(c complaint.Complaint) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, taken := p.mem.FindByID(c.ID); taken {
		return false, nil
	}
	if err := p.insert(c); err != nil {
		return false, err
	}
	return true, nil
}

// insert must be called with p.mu held.
func (p *Persistent) insert(c complaint.Complaint) error {
	seq := p.next
	if err := p.write(seq, c); err != nil {
		return fmt.Errorf("persist complaint %s: %w", c.ID, err)
	}
	p.next++
	p.seq[c.ID] = seq
	return p.mem.Insert(c)
}

func (p *Persistent) FindByID(id string) (complaint.Complaint, bool) {
	return p.mem.FindByID(id)
}

func (p *Persistent) Mutate(id string, fn func(c *complaint.Complaint)) (complaint.Complaint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	updated, err := p.mem.Mutate(id, fn)
	if err != nil {
		return updated, err
	}
	if err := p.write(p.seq[id], updated); err != nil {
		// Memory already holds the change; the next successful write of this id catches disk up.
		p.log.Error("persist complaint update failed", logging.F("id", id), logging.Err(err))
	}
	return updated, nil
}

func (p *Persistent) List() []complaint.Complaint {
	return p.mem.List()
}

// Close flushes and closes the badger database.
func (p *Persistent) Close() error {
	return p.db.Close()
}

func recordKey(seq uint64) []byte {
	return fmt.Appendf(append([]byte{}, keyPrefix...), "%020d", seq)
}
