// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package storageexporter keeps batches and session rows on disk in
// write-ahead logs so telemetry of a process that died before delivering it
// can be recovered on the next launch.
package storageexporter // import "go.opentelemetry.io/mobile/exporter/storageexporter"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/wal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go.opentelemetry.io/mobile/session"
	"go.opentelemetry.io/mobile/telemetry"
)

var (
	errAlreadyClosed  = errors.New("storage is closed")
	errUnknownSession = errors.New("unknown session")
)

const (
	itemsLogName    = "items"
	sessionsLogName = "sessions"

	// sessionLogSlack is how many superseded session records are tolerated
	// beyond two per session before the sessions log is rewritten.
	sessionLogSlack = 16
)

// Settings carries the ambient dependencies of an Exporter.
type Settings struct {
	Logger *zap.Logger
	// ProcessID identifies the current process. Batches stored under a
	// different process id are considered left behind.
	ProcessID string
}

// Exporter stores batches and sessions.
type Exporter struct {
	logger    *zap.Logger
	cfg       Config
	processID string
	now       func() time.Time

	mu       sync.Mutex // mu protects the fields below.
	items    *wal.Log
	sessions *wal.Log
	// ownFrom is the first items log index written by this process.
	ownFrom uint64
	rows    map[string]session.Session
	// sessionRecords is the number of records in the sessions log.
	sessionRecords int
	closed         bool
}

var _ session.Store = (*Exporter)(nil)

// New opens (or creates) the logs under cfg.Directory and loads the stored
// session rows.
func New(set Settings, cfg Config) (*Exporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := set.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exporter{
		logger:    logger,
		cfg:       cfg,
		processID: set.ProcessID,
		now:       time.Now,
		rows:      map[string]session.Session{},
	}

	var err error
	if e.items, err = e.openLog(itemsLogName); err != nil {
		return nil, err
	}
	if e.sessions, err = e.openLog(sessionsLogName); err != nil {
		return nil, multierr.Append(err, e.items.Close())
	}
	last, err := e.items.LastIndex()
	if err != nil {
		return nil, multierr.Combine(err, e.items.Close(), e.sessions.Close())
	}
	e.ownFrom = last + 1

	if err := e.loadSessions(); err != nil {
		return nil, multierr.Combine(err, e.items.Close(), e.sessions.Close())
	}
	logger.Info("Storage opened",
		zap.String("directory", cfg.Directory),
		zap.Int("sessions", len(e.rows)))
	return e, nil
}

func (e *Exporter) openLog(name string) (*wal.Log, error) {
	l, err := wal.Open(filepath.Join(e.cfg.Directory, name), &wal.Options{
		NoSync:           e.cfg.NoSync,
		SegmentCacheSize: e.cfg.segmentCacheSize(),
		DirPerms:         0o750,
		FilePerms:        0o640,
	})
	if err != nil {
		return nil, fmt.Errorf("storageexporter: failed to open %s log: %w", name, err)
	}
	return l, nil
}

// resetLog drops every entry of a log. The WAL cannot truncate all of its
// entries, so the log is recreated.
func (e *Exporter) resetLog(l *wal.Log, name string) (*wal.Log, error) {
	if err := l.Close(); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(filepath.Join(e.cfg.Directory, name)); err != nil {
		return nil, err
	}
	return e.openLog(name)
}

func appendRecord(l *wal.Log, v interface{}) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	last, err := l.LastIndex()
	if err != nil {
		return err
	}
	return l.Write(last+1, data)
}

// scan calls fn for every record of l in index order.
func scan(l *wal.Log, fn func(index uint64, data []byte) error) error {
	first, err := l.FirstIndex()
	if err != nil {
		return err
	}
	last, err := l.LastIndex()
	if err != nil {
		return err
	}
	if first == 0 {
		return nil
	}
	for i := first; i <= last; i++ {
		data, err := l.Read(i)
		if err != nil {
			return fmt.Errorf("read record %d: %w", i, err)
		}
		if err := fn(i, data); err != nil {
			return err
		}
	}
	return nil
}

// Append stores a batch of items and returns the stored batch.
func (e *Exporter) Append(_ context.Context, kind telemetry.Kind, items interface{}, count int) (Batch, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return Batch{}, err
	}
	b := Batch{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProcessID: e.processID,
		CreatedAt: e.now(),
		Count:     count,
		Items:     raw,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Batch{}, errAlreadyClosed
	}
	if err := appendRecord(e.items, itemRecord{Type: recordBatch, Batch: &b}); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Ack records that a batch was delivered; it will not be recovered.
func (e *Exporter) Ack(_ context.Context, batchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errAlreadyClosed
	}
	return appendRecord(e.items, itemRecord{Type: recordAck, AckID: batchID})
}

// Pending returns the undelivered batches of previous processes, oldest
// first.
func (e *Exporter) Pending(context.Context) ([]Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errAlreadyClosed
	}
	return e.pendingLocked()
}

func (e *Exporter) pendingLocked() ([]Batch, error) {
	var batches []Batch
	acked := map[string]bool{}
	err := scan(e.items, func(index uint64, data []byte) error {
		var rec itemRecord
		if err := decode(data, &rec); err != nil {
			e.logger.Warn("Skipping unreadable record", zap.Uint64("index", index), zap.Error(err))
			return nil
		}
		switch rec.Type {
		case recordAck:
			acked[rec.AckID] = true
		case recordBatch:
			if rec.Batch != nil && rec.Batch.ProcessID != e.processID {
				batches = append(batches, *rec.Batch)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := batches[:0]
	for _, b := range batches {
		if !acked[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

// Recover hands every undelivered batch of previous processes to fn, oldest
// first, and stops at the first error. Once all of them are delivered the
// records of previous processes are removed from disk. It returns the number
// of batches delivered. fn runs without the storage lock held, so it may
// use the exporter.
func (e *Exporter) Recover(ctx context.Context, fn func(context.Context, Batch) error) (int, error) {
	pending, err := e.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, b := range pending {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := fn(ctx, b); err != nil {
			return i, fmt.Errorf("recover batch %s: %w", b.ID, err)
		}
		if err := e.Ack(ctx, b.ID); err != nil {
			return i + 1, err
		}
	}
	if len(pending) > 0 {
		e.logger.Info("Recovered batches from previous processes", zap.Int("batches", len(pending)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return len(pending), errAlreadyClosed
	}
	return len(pending), e.dropPriorLocked()
}

func (e *Exporter) dropPriorLocked() error {
	first, err := e.items.FirstIndex()
	if err != nil || first == 0 || first >= e.ownFrom {
		return err
	}
	last, err := e.items.LastIndex()
	if err != nil {
		return err
	}
	if e.ownFrom <= last {
		if err := e.items.TruncateFront(e.ownFrom); err != nil && !errors.Is(err, wal.ErrOutOfRange) {
			return err
		}
		return nil
	}
	items, err := e.resetLog(e.items, itemsLogName)
	if err != nil {
		return err
	}
	e.items = items
	e.ownFrom = 1
	return nil
}

// UpsertSession stores the latest snapshot of a session. A crash report id
// already stored for the session is kept.
func (e *Exporter) UpsertSession(_ context.Context, s session.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errAlreadyClosed
	}
	if prev, ok := e.rows[s.ID]; ok && s.CrashReportID == "" {
		s.CrashReportID = prev.CrashReportID
	}
	if err := appendRecord(e.sessions, toRecord(s)); err != nil {
		return err
	}
	e.rows[s.ID] = s
	e.sessionRecordAppendedLocked()
	return nil
}

// SetCrashReportID links a crash report to a stored session, ended or not.
func (e *Exporter) SetCrashReportID(_ context.Context, sessionID, reportID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errAlreadyClosed
	}
	s, ok := e.rows[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownSession, sessionID)
	}
	s.CrashReportID = reportID
	if err := appendRecord(e.sessions, toRecord(s)); err != nil {
		return err
	}
	e.rows[sessionID] = s
	e.sessionRecordAppendedLocked()
	return nil
}

// sessionRecordAppendedLocked rewrites the sessions log once heartbeats
// have piled up superseded records. The new record is already stored, so a
// failed rewrite is only logged.
func (e *Exporter) sessionRecordAppendedLocked() {
	e.sessionRecords++
	if !compactionDue(e.sessionRecords, len(e.rows)) {
		return
	}
	if err := e.compactSessions(); err != nil {
		e.logger.Warn("Failed to compact sessions log", zap.Error(err))
	}
}

func compactionDue(records, rows int) bool {
	return records > 2*rows+sessionLogSlack
}

// Session returns the stored row of a session.
func (e *Exporter) Session(id string) (session.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.rows[id]
	return s, ok
}

// Sessions returns every stored session ordered by start time.
func (e *Exporter) Sessions() []session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]session.Session, 0, len(e.rows))
	for _, s := range e.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// PriorSessions returns the stored sessions of previous processes ordered by
// start time.
func (e *Exporter) PriorSessions() []session.Session {
	var out []session.Session
	for _, s := range e.Sessions() {
		if s.ProcessID != e.processID {
			out = append(out, s)
		}
	}
	return out
}

// loadSessions replays the sessions log; the last record of a session wins.
// A log holding many superseded records is rewritten with one record per
// session.
func (e *Exporter) loadSessions() error {
	records := 0
	err := scan(e.sessions, func(index uint64, data []byte) error {
		records++
		var rec sessionRecord
		if err := decode(data, &rec); err != nil {
			e.logger.Warn("Skipping unreadable session record", zap.Uint64("index", index), zap.Error(err))
			return nil
		}
		e.rows[rec.ID] = rec.session()
		return nil
	})
	if err != nil {
		return err
	}
	e.sessionRecords = records
	if !compactionDue(records, len(e.rows)) {
		return nil
	}
	return e.compactSessions()
}

func (e *Exporter) compactSessions() error {
	sessions, err := e.resetLog(e.sessions, sessionsLogName)
	if err != nil {
		return err
	}
	e.sessions = sessions

	ordered := make([]session.Session, 0, len(e.rows))
	for _, s := range e.rows {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})
	batch := new(wal.Batch)
	for i, s := range ordered {
		data, err := encode(toRecord(s))
		if err != nil {
			return err
		}
		batch.Write(uint64(i+1), data)
	}
	if err := e.sessions.WriteBatch(batch); err != nil {
		return err
	}
	e.sessionRecords = len(ordered)
	return nil
}

// Close syncs and closes both logs.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errAlreadyClosed
	}
	e.closed = true
	return multierr.Combine(
		e.items.Sync(),
		e.sessions.Sync(),
		e.items.Close(),
		e.sessions.Close(),
	)
}
