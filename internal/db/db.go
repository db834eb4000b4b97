// Package db implements the persistent dependency-tracking database:
// the answers/dependencies tables, transitive invalidation, and the
// b_question_answer_matches user-defined function that backs it.
package db

import (
	"github.com/askbuild/ask/internal/qa"
)

// Fact identifies a question (or, in a dependency edge, either side
// of one) by its vtable UUID and serialized bytes — the sole identity
// SQLite needs; the database never deserializes a Question except
// inside RecheckAll's UDF.
type Fact struct {
	UUID qa.UUID
	Data []byte
}

// ErrorPolicy is the disposition an ErrorHandler selects for a
// platform I/O error (SQLite failure).
type ErrorPolicy int

const (
	// PolicyAbort surfaces the error to the caller unchanged.
	PolicyAbort ErrorPolicy = iota
	// PolicyRetry resets the failed statement and reissues it,
	// consulting the handler again on each subsequent failure.
	PolicyRetry
	// PolicyIgnore swallows the error and reports success with a
	// zero-value result; used sparingly, for best-effort housekeeping.
	PolicyIgnore
)

// ErrorHandler classifies a database-layer error and selects a
// policy. The default handler (used when nil) always returns
// PolicyAbort.
type ErrorHandler func(op string, err error) ErrorPolicy

// Database is the persistent store described in spec.md §4.5: two
// relations (answers, dependencies) behind a single mutex, with a
// transitive invalidation query. Implementations: sqlite (production)
// and memorydb (tests / the "DatabaseInMemory" contract from §9).
type Database interface {
	// RecordDependency inserts a (from,to) edge. Duplicates are
	// tolerated and never uniqued.
	RecordDependency(from, to Fact) error

	// RecordAnswer stores answerData for q. A prior answer recorded
	// under the same key is replaced, so each key has at most one row.
	RecordAnswer(q Fact, answerData []byte) error

	// LookUpAnswer returns the memoized answer bytes for q, if any.
	LookUpAnswer(q Fact) (answerData []byte, found bool, err error)

	// RecheckAll deletes every answer whose live fact no longer
	// matches its stored value, and every answer transitively
	// depending on such a fact, per the recursive query in §4.5.
	// known supplies the vtable set the UDF uses to recompute live
	// answers; an unknown UUID is conservatively treated as stale.
	RecheckAll(known map[qa.UUID]qa.QuestionVTable) error

	// Close finalizes prepared statements and releases the
	// underlying connection.
	Close() error
}
