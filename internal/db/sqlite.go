package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" database/sql driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the WASM SQLite build, no CGO required

	"github.com/askbuild/ask/internal/qa"
)

// udfName is the SQL function name the recursive invalidation query
// in recheckAllQuery calls to decide whether a stored answer is stale.
const udfName = "b_question_answer_matches"

// OpenFlags controls Open's creation behavior.
type OpenFlags struct {
	// Create creates the schema if the file does not already exist.
	// Opening a missing file without Create returns an error.
	Create bool
}

// SQLiteDatabase is the production Database backend: a SQLite file
// conforming to the schema in spec.md §3, opened through the
// pure-Go, WASM-compiled ncruces/go-sqlite3 driver so the engine never
// needs CGO, while still getting full WITH RECURSIVE support (the
// engine's one hard requirement on its backing SQLite build).
type SQLiteDatabase struct {
	mu      sync.Mutex
	sqlDB   *sql.DB
	rawConn *sqlite3.Conn // kept open for the lifetime of the DB, for the UDF

	handler ErrorHandler

	insertDependencyStmt *sql.Stmt
	insertAnswerStmt     *sql.Stmt
	selectAnswerStmt     *sql.Stmt

	// vtMu guards currentKnownVTables separately from mu: the UDF runs
	// synchronously inside the Exec call RecheckAll makes while holding
	// mu, so the UDF must not also take mu or it deadlocks against its
	// own caller.
	vtMu sync.Mutex
	// currentKnownVTables backs the UDF closure; RecheckAll swaps it
	// in before running the recursive query, since the UDF itself
	// can't take an argument describing the registry.
	currentKnownVTables map[qa.UUID]qa.QuestionVTable
}

// Open opens or creates the database file at path. The engine refuses
// to open against a SQLite build lacking WITH RECURSIVE support; the
// ncruces/go-sqlite3 embedded build always has it, so that check is
// implicit rather than probed at runtime.
func Open(path string, flags OpenFlags) (*SQLiteDatabase, error) {
	if flags.Create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create parent directory: %w", err)
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("db: open %s: %w", path, err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(wal)"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	// The engine's own invariant is a single mutex-protected
	// connection (spec.md §4.5); one pooled connection keeps the UDF
	// registration (which is per-connection) valid for every query.
	sqlDB.SetMaxOpenConns(1)

	d := &SQLiteDatabase{sqlDB: sqlDB, currentKnownVTables: map[qa.UUID]qa.QuestionVTable{}}

	if err := d.grabRawConn(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := d.registerUDF(); err != nil {
		_ = d.Close()
		return nil, err
	}

	if err := d.createSchema(); err != nil {
		_ = d.Close()
		return nil, err
	}

	if err := d.prepareStatements(); err != nil {
		_ = d.Close()
		return nil, err
	}

	return d, nil
}

func (d *SQLiteDatabase) grabRawConn() error {
	conn, err := d.sqlDB.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("db: acquire connection: %w", err)
	}
	// Return the *sql.Conn to the pool once we've captured the raw
	// handle: with SetMaxOpenConns(1) the pool has exactly one physical
	// connection, so every later pool call (createSchema,
	// prepareStatements, the statement Execs) reuses this same
	// connection rather than blocking forever for a second one that
	// will never exist.
	defer conn.Close()
	return conn.Raw(func(driverConn any) error {
		raw, ok := driverConn.(interface{ Raw() *sqlite3.Conn })
		if !ok {
			return fmt.Errorf("db: sqlite3 driver connection does not expose Raw()")
		}
		d.rawConn = raw.Raw()
		return nil
	})
}

// registerUDF installs b_question_answer_matches(uuid, q_bytes, a_bytes)
// → int, as described in spec.md §4.5: deserialize the question via
// the vtable named by UUID, recompute its live answer, serialize it,
// and compare byte-for-byte against a_bytes. An unregistered UUID
// conservatively returns 0 (stale) rather than erroring the query.
func (d *SQLiteDatabase) registerUDF() error {
	return d.rawConn.CreateFunction(udfName, 3, sqlite3.DETERMINISTIC,
		func(ctx sqlite3.Context, arg ...sqlite3.Value) {
			uuidBytes := arg[0].Blob()
			qBytes := arg[1].Blob()
			aBytes := arg[2].Blob()

			var id qa.UUID
			if len(uuidBytes) != len(id) {
				ctx.ResultInt(0)
				return
			}
			copy(id[:], uuidBytes)

			d.vtMu.Lock()
			vt, ok := d.currentKnownVTables[id]
			d.vtMu.Unlock()
			if !ok {
				ctx.ResultInt(0)
				return
			}

			q, err := vt.Deserialize(qBytes)
			if err != nil {
				ctx.ResultInt(0)
				return
			}
			a, err := vt.Answer(q)
			if err != nil {
				ctx.ResultInt(0)
				return
			}
			recomputed, err := vt.AnswerVTable().Serialize(a)
			if err != nil {
				ctx.ResultInt(0)
				return
			}
			if string(recomputed) == string(aBytes) {
				ctx.ResultInt(1)
			} else {
				ctx.ResultInt(0)
			}
		})
}

func (d *SQLiteDatabase) createSchema() error {
	_, err := d.sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS answers (
			question_uuid BLOB NOT NULL,
			question_data BLOB NOT NULL,
			answer_data BLOB NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_answers_key
			ON answers(question_uuid, question_data);

		CREATE TABLE IF NOT EXISTS dependencies (
			from_uuid BLOB NOT NULL,
			from_data BLOB NOT NULL,
			to_uuid BLOB NOT NULL,
			to_data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dependencies_to
			ON dependencies(to_uuid, to_data);
		CREATE INDEX IF NOT EXISTS idx_dependencies_from
			ON dependencies(from_uuid, from_data);
	`)
	if err != nil {
		return fmt.Errorf("db: create schema: %w", err)
	}
	return nil
}

func (d *SQLiteDatabase) prepareStatements() error {
	var err error
	// answers.(question_uuid,question_data) is a unique key; a row
	// from a previous answer for the same question is replaced
	// outright rather than accumulated, since record_answer always
	// supersedes whatever RecheckAll hasn't yet pruned.
	d.insertAnswerStmt, err = d.sqlDB.Prepare(`
		INSERT INTO answers (question_uuid, question_data, answer_data)
		VALUES (?, ?, ?)
		ON CONFLICT(question_uuid, question_data) DO UPDATE SET answer_data = excluded.answer_data
	`)
	if err != nil {
		return fmt.Errorf("db: prepare insert answer: %w", err)
	}

	d.insertDependencyStmt, err = d.sqlDB.Prepare(`
		INSERT INTO dependencies (from_uuid, from_data, to_uuid, to_data)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("db: prepare insert dependency: %w", err)
	}

	d.selectAnswerStmt, err = d.sqlDB.Prepare(`
		SELECT answer_data FROM answers WHERE question_uuid = ? AND question_data = ?
	`)
	if err != nil {
		return fmt.Errorf("db: prepare select answer: %w", err)
	}

	return nil
}

// WithErrorHandler installs a custom ErrorHandler; by default all
// SQLite errors abort to the caller (PolicyAbort).
func (d *SQLiteDatabase) WithErrorHandler(h ErrorHandler) *SQLiteDatabase {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
	return d
}

// runWithRetry runs op, and on failure consults the installed
// ErrorHandler: PolicyAbort surfaces the error, PolicyIgnore swallows
// it, and PolicyRetry resets and reissues the statement by calling op
// again, consulting the handler afresh on every subsequent failure.
// Callers must already hold mu.
func (d *SQLiteDatabase) runWithRetry(op string, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		h := d.handler
		if h == nil {
			return err
		}
		switch h(op, err) {
		case PolicyRetry:
			continue
		case PolicyIgnore:
			return nil
		default: // PolicyAbort
			return err
		}
	}
}

func (d *SQLiteDatabase) RecordDependency(from, to Fact) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runWithRetry("record_dependency", func() error {
		_, err := d.insertDependencyStmt.Exec(from.UUID[:], from.Data, to.UUID[:], to.Data)
		return err
	})
}

func (d *SQLiteDatabase) RecordAnswer(q Fact, answerData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runWithRetry("record_answer", func() error {
		_, err := d.insertAnswerStmt.Exec(q.UUID[:], q.Data, answerData)
		return err
	})
}

func (d *SQLiteDatabase) LookUpAnswer(q Fact) (answerData []byte, found bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var data []byte
	var noRows bool
	err = d.runWithRetry("look_up_answer", func() error {
		noRows = false
		row := d.selectAnswerStmt.QueryRow(q.UUID[:], q.Data)
		scanErr := row.Scan(&data)
		if errors.Is(scanErr, sql.ErrNoRows) {
			noRows = true
			return nil
		}
		return scanErr
	})
	if err != nil {
		return nil, false, err
	}
	if noRows {
		return nil, false, nil
	}
	return data, true, nil
}

// recheckAllQuery is the design-level statement from spec.md §4.5,
// run against the WITH RECURSIVE-capable backing store; the only
// change is that the final IN clause selects from invalid through an
// explicit subquery.
const recheckAllQuery = `
WITH RECURSIVE invalid(uuid, data) AS (
    SELECT question_uuid, question_data FROM answers
        WHERE ` + udfName + `(question_uuid, question_data, answer_data) = 0
  UNION ALL
    SELECT dep.from_uuid, dep.from_data FROM invalid
        JOIN dependencies dep
        ON dep.to_uuid = invalid.uuid AND dep.to_data = invalid.data
)
DELETE FROM answers WHERE (question_uuid, question_data) IN (SELECT uuid, data FROM invalid)
`

func (d *SQLiteDatabase) RecheckAll(known map[qa.UUID]qa.QuestionVTable) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.vtMu.Lock()
	d.currentKnownVTables = known
	d.vtMu.Unlock()
	defer func() {
		d.vtMu.Lock()
		d.currentKnownVTables = map[qa.UUID]qa.QuestionVTable{}
		d.vtMu.Unlock()
	}()

	return d.runWithRetry("recheck_all", func() error {
		_, err := d.sqlDB.Exec(recheckAllQuery)
		return err
	})
}

func (d *SQLiteDatabase) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, stmt := range []*sql.Stmt{d.insertAnswerStmt, d.insertDependencyStmt, d.selectAnswerStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return d.sqlDB.Close()
}
