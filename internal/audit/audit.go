// Package audit records the admission decision trail. Every pipeline stage
// a submission passes or fails emits one Event; sinks decide where the
// trail goes (structured log, SQLite, both, nowhere).
//
// Recording is best-effort by contract: the pipeline logs sink failures
// and moves on. An audit outage must never block or fail an admission.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-credit-gate/internal/domain"
	"github.com/tbourn/go-credit-gate/internal/repo"

	"gorm.io/gorm"
)

// Event outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
)

// Event is one stage outcome for one submission.
type Event struct {
	Stage         string
	TransactionID string
	UserID        string
	Outcome       string
	Detail        string
	At            time.Time
}

// Sink is the persistence strategy for the decision trail. Implementations
// must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// NopSink discards every event.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(context.Context, Event) error { return nil }

// LogSink writes events to a zerolog logger: rejections at warn, the rest
// at info.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink returns a LogSink writing to log.
func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log}
}

// Record implements Sink.
func (s LogSink) Record(_ context.Context, ev Event) error {
	evt := s.log.Info()
	if ev.Outcome == OutcomeRejected {
		evt = s.log.Warn()
	}
	evt.
		Str("stage", ev.Stage).
		Str("transaction_id", ev.TransactionID).
		Str("user_id", ev.UserID).
		Str("outcome", ev.Outcome).
		Str("detail", ev.Detail).
		Time("at", ev.At).
		Msg("admission audit")
	return nil
}

// StoreSink persists events as AuditRecord rows.
type StoreSink struct {
	db *gorm.DB
}

// NewStoreSink returns a StoreSink writing through db. The schema must
// already be migrated (repo.AutoMigrate).
func NewStoreSink(db *gorm.DB) StoreSink {
	return StoreSink{db: db}
}

// Record implements Sink.
func (s StoreSink) Record(ctx context.Context, ev Event) error {
	rec := &domain.AuditRecord{
		TransactionID: ev.TransactionID,
		UserID:        ev.UserID,
		Stage:         ev.Stage,
		Outcome:       ev.Outcome,
		Detail:        ev.Detail,
		CreatedAt:     ev.At,
	}
	return repo.CreateAuditRecord(ctx, s.db, rec)
}

// MultiSink fans an event out to several sinks. Every sink is attempted;
// failures are joined into one error.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
