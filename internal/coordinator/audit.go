package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/coalesce/pkg/types"
)

// ErrAuditUnavailable is returned by a BreakerSink whose circuit is open:
// the underlying sink has failed repeatedly and is being given time to
// recover. Merges still commit; only the audit record is dropped.
var ErrAuditUnavailable = errors.New("audit sink unavailable")

// AuditSink receives one MergeRecord per cluster the coordinator attempts.
type AuditSink interface {
	Record(ctx context.Context, record types.MergeRecord) error
	Close() error
}

// LogSink writes merge records to the process log. It is the default sink.
type LogSink struct{}

// Record logs the outcome of one cluster.
func (LogSink) Record(_ context.Context, record types.MergeRecord) error {
	if record.Committed() {
		log.Printf("coordinator: merged %v into %s (record %s)",
			record.AbsorbedIDs, record.CanonicalID, record.ID)
	} else {
		log.Printf("coordinator: merge of %v rejected: %s (record %s)",
			record.AbsorbedIDs, record.Conflict, record.ID)
	}
	return nil
}

// Close is a no-op.
func (LogSink) Close() error { return nil }

// FileSink writes each merge record as a JSON .event file in a directory,
// one file per record named by the record id. Downstream consumers pick the
// files up by watching the directory.
type FileSink struct {
	dir string
}

// NewFileSink creates the events directory if needed and returns a sink
// writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("coordinator: create events dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Record writes the record to a temp file and renames it into place, so a
// watcher never observes a partially written event.
func (s *FileSink) Record(_ context.Context, record types.MergeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("coordinator: marshal merge record %s: %w", record.ID, err)
	}

	final := filepath.Join(s.dir, record.ID+".event")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("coordinator: write merge record %s: %w", record.ID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("coordinator: publish merge record %s: %w", record.ID, err)
	}
	return nil
}

// Close is a no-op; each record is flushed as it is written.
func (s *FileSink) Close() error { return nil }

// BreakerSink wraps another sink with a circuit breaker. After
// maxFailures consecutive failures the circuit opens and Record fails fast
// with ErrAuditUnavailable until the timeout elapses and a probe succeeds.
type BreakerSink struct {
	sink    AuditSink
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps sink. Zero values get defaults of 3 failures and a
// 30 second open interval.
func NewBreakerSink(sink AuditSink, maxFailures uint32, timeout time.Duration) *BreakerSink {
	if maxFailures == 0 {
		maxFailures = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "AuditSink",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("coordinator: audit breaker %s -> %s", from, to)
		},
	}

	return &BreakerSink{
		sink:    sink,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Record forwards to the wrapped sink through the breaker.
func (b *BreakerSink) Record(ctx context.Context, record types.MergeRecord) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.sink.Record(ctx, record)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("coordinator: %w", ErrAuditUnavailable)
	}
	return err
}

// Close closes the wrapped sink.
func (b *BreakerSink) Close() error { return b.sink.Close() }

// State returns the breaker state as "closed", "open", or "half-open".
func (b *BreakerSink) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "half-open"
	}
}
