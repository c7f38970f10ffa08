// Package journal records machine runs in a SQLite database. A Run is a
// vm.Tracer: attach it with vm.WithTracer and every executed instruction is
// written as one row, then Finish stores the outcome.
package journal

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/mimihuang/VM-practice/vm"
)

func log() commonlog.Logger {
	return commonlog.GetLogger("smallvm.journal")
}

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ErrFinished is returned when a finished run is used again.
var ErrFinished = errors.New("run already finished")

// Outcomes stored for a run.
const (
	OutcomeRunning = "running"
	OutcomeOK      = "ok"
	OutcomeFault   = "fault"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid          TEXT    NOT NULL UNIQUE,
	program_hash  TEXT    NOT NULL,
	program_size  INTEGER NOT NULL,
	heap_capacity INTEGER NOT NULL,
	fetch_mode    TEXT    NOT NULL,
	started_at    TEXT    NOT NULL,
	finished_at   TEXT,
	steps         INTEGER NOT NULL DEFAULT 0,
	outcome       TEXT    NOT NULL,
	fault         TEXT
)`, `
CREATE TABLE IF NOT EXISTS steps (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	idx         INTEGER NOT NULL,
	ip          INTEGER NOT NULL,
	opcode      INTEGER NOT NULL,
	instruction TEXT    NOT NULL,
	stack_depth INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
)`,
}

// Journal is a SQLite-backed run log.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	// The busy timeout goes in the DSN so every pooled connection gets it.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	log().Debugf("journal opened: %s", path)
	return &Journal{db: db, path: path}, nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Run is one journaled execution. Steps are buffered in a transaction that
// Finish commits.
type Run struct {
	ID   int64
	UUID string // stable key, unique across journals

	j     *Journal
	tx    *sql.Tx
	stmt  *sql.Stmt
	seq   int
	err   error // first step write error
	mu    sync.Mutex
	start time.Time
}

// BeginRun records the start of a run of program.
func (j *Journal) BeginRun(program []byte, heapCapacity int, fetch vm.FetchMode) (*Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning run: %w", err)
	}

	start := time.Now().UTC()
	key := "run_" + uuid.New().String()
	sum := sha256.Sum256(program)
	res, err := tx.Exec(
		`INSERT INTO runs (uuid, program_hash, program_size, heap_capacity, fetch_mode, started_at, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key, hex.EncodeToString(sum[:]), len(program), heapCapacity, fetch.String(),
		start.Format(time.RFC3339Nano), OutcomeRunning,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("reading run id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO steps (run_id, seq, idx, ip, opcode, instruction, stack_depth)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("preparing step insert: %w", err)
	}

	log().Debugf("run %d (%s) started", id, key)
	return &Run{ID: id, UUID: key, j: j, tx: tx, stmt: stmt, start: start}, nil
}

// TraceStep implements vm.Tracer. A write failure is kept and reported by
// Finish; later steps are not written.
func (r *Run) TraceStep(s vm.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tx == nil || r.err != nil {
		return
	}
	_, err := r.stmt.Exec(r.ID, r.seq, s.Index, s.IP, int(s.Instruction.Op), s.Instruction.String(), s.StackDepth)
	if err != nil {
		r.err = fmt.Errorf("recording step %d: %w", r.seq, err)
		log().Errorf("run %d: %v", r.ID, r.err)
		return
	}
	r.seq++
}

// Steps returns the number of steps recorded so far.
func (r *Run) Steps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Finish stores the outcome of the run and commits it. runErr is the error
// returned by vm.Machine.Run. If a step could not be written the run is
// rolled back and that error is returned.
func (r *Run) Finish(runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tx == nil {
		return ErrFinished
	}
	tx := r.tx
	r.tx = nil
	defer r.stmt.Close()

	if r.err != nil {
		tx.Rollback()
		return r.err
	}

	outcome, fault := OutcomeOK, sql.NullString{}
	if runErr != nil {
		outcome = OutcomeFault
		fault = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := tx.Exec(
		`UPDATE runs SET finished_at = ?, steps = ?, outcome = ?, fault = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), r.seq, outcome, fault, r.ID,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("finishing run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}

	log().Infof("run %d: %s after %d step(s) in %s", r.ID, outcome, r.seq, time.Since(r.start))
	return nil
}
