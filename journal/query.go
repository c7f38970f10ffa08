package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mimihuang/VM-practice/pkg/bytecode"
)

// RunInfo is a stored run.
type RunInfo struct {
	ID           int64
	UUID         string
	ProgramHash  string
	ProgramSize  int
	HeapCapacity int
	FetchMode    string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Steps        int
	Outcome      string
	Fault        string
}

// StepRecord is a stored step.
type StepRecord struct {
	Seq         int
	Index       int
	IP          int
	Op          bytecode.Opcode
	Instruction string
	StackDepth  int
}

const runColumns = `id, uuid, program_hash, program_size, heap_capacity, fetch_mode,
	started_at, finished_at, steps, outcome, fault`

// Runs returns the most recent committed runs, newest first. limit <= 0
// returns all of them.
func (j *Journal) Runs(limit int) ([]RunInfo, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Run returns one run by id.
func (j *Journal) Run(id int64) (RunInfo, error) {
	row := j.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, ErrRunNotFound
	}
	return info, err
}

// RunByUUID returns one run by its UUID key.
func (j *Journal) RunByUUID(key string) (RunInfo, error) {
	row := j.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE uuid = ?", key)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, ErrRunNotFound
	}
	return info, err
}

// Steps returns the recorded steps of a run in execution order.
func (j *Journal) Steps(runID int64) ([]StepRecord, error) {
	rows, err := j.db.Query(
		`SELECT seq, idx, ip, opcode, instruction, stack_depth
		 FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var s StepRecord
		var op int
		if err := rows.Scan(&s.Seq, &s.Index, &s.IP, &op, &s.Instruction, &s.StackDepth); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		s.Op = bytecode.Opcode(op)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// OpcodeHistogram counts the recorded steps of a run per opcode.
func (j *Journal) OpcodeHistogram(runID int64) (map[bytecode.Opcode]int, error) {
	rows, err := j.db.Query(
		`SELECT opcode, COUNT(*) FROM steps WHERE run_id = ? GROUP BY opcode`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying histogram: %w", err)
	}
	defer rows.Close()

	hist := make(map[bytecode.Opcode]int)
	for rows.Next() {
		var op, n int
		if err := rows.Scan(&op, &n); err != nil {
			return nil, fmt.Errorf("scanning histogram: %w", err)
		}
		hist[bytecode.Opcode(op)] = n
	}
	return hist, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunInfo, error) {
	var info RunInfo
	var started string
	var finished, fault sql.NullString
	err := s.Scan(&info.ID, &info.UUID, &info.ProgramHash, &info.ProgramSize, &info.HeapCapacity,
		&info.FetchMode, &started, &finished, &info.Steps, &info.Outcome, &fault)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return info, err
		}
		return info, fmt.Errorf("scanning run: %w", err)
	}

	if info.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return info, fmt.Errorf("parsing start time: %w", err)
	}
	if finished.Valid {
		if info.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return info, fmt.Errorf("parsing finish time: %w", err)
		}
	}
	info.Fault = fault.String
	return info, nil
}
