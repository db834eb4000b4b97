// Package memorydb is a non-persistent Database backend exposing the
// same record_dependency/record_answer/look_up_answer/recheck_all
// contract as the SQLite backend, for fast unit tests. It supersedes
// the C original's standalone DatabaseInMemory design (see spec.md
// §9): same contract, no separate API surface.
package memorydb

import (
	"sync"

	"github.com/askbuild/ask/internal/db"
	"github.com/askbuild/ask/internal/qa"
)

type key struct {
	uuid qa.UUID
	data string
}

type edge struct {
	from, to key
}

// Database is an in-process, mutex-protected Database.
type Database struct {
	mu      sync.Mutex
	answers map[key][]byte
	edges   []edge
}

// New returns an empty in-memory database.
func New() *Database {
	return &Database{answers: make(map[key][]byte)}
}

func toKey(f db.Fact) key {
	return key{uuid: f.UUID, data: string(f.Data)}
}

func (d *Database) RecordDependency(from, to db.Fact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edges = append(d.edges, edge{from: toKey(from), to: toKey(to)})
	return nil
}

func (d *Database) RecordAnswer(q db.Fact, answerData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(answerData))
	copy(cp, answerData)
	d.answers[toKey(q)] = cp
	return nil
}

func (d *Database) LookUpAnswer(q db.Fact) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.answers[toKey(q)]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (d *Database) RecheckAll(known map[qa.UUID]qa.QuestionVTable) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	stale := make(map[key]bool)
	for k, answerData := range d.answers {
		vt, ok := known[k.uuid]
		if !ok {
			stale[k] = true
			continue
		}
		q, err := vt.Deserialize([]byte(k.data))
		if err != nil {
			stale[k] = true
			continue
		}
		a, err := vt.Answer(q)
		if err != nil {
			stale[k] = true
			continue
		}
		recomputed, err := vt.AnswerVTable().Serialize(a)
		if err != nil || string(recomputed) != string(answerData) {
			stale[k] = true
		}
	}

	// Transitive closure: repeatedly mark any answer that is the
	// "from" side of an edge whose "to" side is already stale, until
	// a fixed point (dependencies form a DAG in a well-formed graph,
	// but the loop tolerates cycles by converging rather than
	// looping forever: each pass can only add to `stale`, which is
	// bounded by len(d.answers)).
	for {
		added := false
		for _, e := range d.edges {
			if stale[e.to] && !stale[e.from] {
				stale[e.from] = true
				added = true
			}
		}
		if !added {
			break
		}
	}

	for k := range stale {
		delete(d.answers, k)
	}
	return nil
}

func (d *Database) Close() error {
	return nil
}
