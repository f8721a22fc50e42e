package trace

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	evalerrors "github.com/hrygo/verdict/internal/errors"
	"github.com/hrygo/verdict/store"
)

// Registry keeps one Recorder per open execution so that concurrent executions,
// such as those reported by remote agents over HTTP, record independently.
type Registry struct {
	store  *store.Store
	opts   []RecorderOption
	reader *Recorder

	mu        sync.Mutex
	recorders map[string]*Recorder
}

// NewRegistry creates a registry whose recorders persist to s.
func NewRegistry(s *store.Store, opts ...RecorderOption) *Registry {
	return &Registry{
		store:     s,
		opts:      opts,
		reader:    NewRecorder(s, opts...),
		recorders: make(map[string]*Recorder),
	}
}

// Begin opens a session for executionID. An open session with the same id is replaced.
func (r *Registry) Begin(executionID string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.recorders[executionID]
	if !ok {
		rec = NewRecorder(r.store, r.opts...)
		r.recorders[executionID] = rec
	}
	rec.BeginExecution(executionID)
	return rec
}

// Recorder returns the recorder of an open execution.
func (r *Registry) Recorder(executionID string) (*Recorder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recorders[executionID]
	return rec, ok
}

// End finalizes an open execution and forgets its recorder.
func (r *Registry) End(ctx context.Context, executionID string) (*NormalizedTrace, error) {
	r.mu.Lock()
	rec, ok := r.recorders[executionID]
	delete(r.recorders, executionID)
	r.mu.Unlock()

	if !ok {
		return nil, evalerrors.NotFound("active execution", executionID)
	}
	return rec.EndExecution(ctx)
}

// Active returns the ids of open executions, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.recorders))
	for id := range r.recorders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sweep discards open executions with no activity for longer than idle, so
// that sessions abandoned by their clients do not accumulate. Discarded
// sessions are not persisted. It returns how many were dropped.
func (r *Registry) Sweep(idle time.Duration) int {
	now := r.reader.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.recorders {
		last, open := rec.lastActivity()
		if open && now.Sub(last) <= idle {
			continue
		}
		events := rec.discard()
		delete(r.recorders, id)
		removed++
		slog.Warn("discarding abandoned execution",
			"execution_id", id,
			"events", events,
			"idle", now.Sub(last).Round(time.Second),
		)
	}
	return removed
}

// LoadTrace reads a finalized trace from the store.
func (r *Registry) LoadTrace(ctx context.Context, executionID string) (*NormalizedTrace, error) {
	return r.reader.LoadTrace(ctx, executionID)
}

// ListExecutions lists finalized executions, most recent first.
func (r *Registry) ListExecutions(ctx context.Context, limit int) ([]*store.Execution, error) {
	return r.reader.ListExecutions(ctx, limit)
}
