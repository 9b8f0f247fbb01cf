// Package orchestrator owns the query state for each record kind and keeps
// the merged view consistent across page, filter, and sort changes. It is an
// explicit state machine: Idle -> Loading -> Success|Error, with Loading
// re-entered on every query change.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kursadbilgin/hrp-console/internal/domain"
	"github.com/kursadbilgin/hrp-console/internal/observability"
	"github.com/kursadbilgin/hrp-console/internal/sorting"
	"github.com/kursadbilgin/hrp-console/internal/upstream"
)

// State is the lifecycle of one record kind's view.
type State string

const (
	StateIdle    State = "IDLE"
	StateLoading State = "LOADING"
	StateSuccess State = "SUCCESS"
	StateError   State = "ERROR"
)

func (s State) String() string { return string(s) }

// Fetcher is the gateway port the orchestrator drives.
type Fetcher interface {
	FetchBatches(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error)
	FetchProcesses(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error)
	SubmitStatus(ctx context.Context, update upstream.StatusUpdate) error
}

// OverrideStore is the local decision store merged onto process pages.
type OverrideStore interface {
	Get(recordID int64) (domain.StatusOverride, bool)
	Put(ctx context.Context, recordID int64, decision domain.Decision, comment string) error
	Merge(records []domain.ProcessRecord) []domain.ProcessRecord
}

// BatchView is the batch kind's snapshot exposed to the presentation layer.
type BatchView struct {
	State        State
	Query        domain.QueryState
	Result       domain.PageResult[domain.BatchRecord]
	ErrorKind    upstream.Kind
	ErrorMessage string
}

// ProcessView is the process kind's snapshot; Result.Items arrive with
// overrides already merged.
type ProcessView struct {
	State        State
	Query        domain.QueryState
	Result       domain.PageResult[domain.ProcessRecord]
	ErrorKind    upstream.Kind
	ErrorMessage string
}

type view struct {
	state        State
	query        domain.QueryState
	batches      domain.PageResult[domain.BatchRecord]
	processes    domain.PageResult[domain.ProcessRecord]
	errorKind    upstream.Kind
	errorMessage string

	// seq identifies the most recently issued request; a resolving fetch
	// whose seq no longer matches is stale and must be discarded.
	seq    uint64
	cancel context.CancelFunc
}

// Orchestrator keeps one independent view per record kind. Switching kinds
// never cancels the other kind's in-flight work or drops its state.
type Orchestrator struct {
	fetcher   Fetcher
	overrides OverrideStore
	metrics   *observability.Metrics
	logger    *zap.Logger
	clock     func() time.Time

	mu    sync.Mutex
	views map[domain.RecordKind]*view
}

func New(fetcher Fetcher, overrides OverrideStore, metrics *observability.Metrics, logger *zap.Logger) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if overrides == nil {
		return nil, fmt.Errorf("override store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		fetcher:   fetcher,
		overrides: overrides,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
		views: map[domain.RecordKind]*view{
			domain.KindBatch:   {state: StateIdle},
			domain.KindProcess: {state: StateIdle},
		},
	}, nil
}

// UpdateQuery supersedes the kind's current query. Any in-flight fetch for
// the same kind is cancelled immediately and its late result discarded; the
// visible result always corresponds to the last issued query. The returned
// channel closes when this particular request settles (applied or
// discarded).
func (o *Orchestrator) UpdateQuery(kind domain.RecordKind, q domain.QueryState) (<-chan struct{}, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown record kind %q", domain.ErrValidation, kind)
	}

	q.Kind = kind
	q = q.Normalize()

	o.mu.Lock()
	v := o.views[kind]

	// Changing anything but the page snaps back to the first page.
	if v.state != StateIdle && !v.query.SameExceptPage(q) {
		q.Page = 0
	}

	if v.cancel != nil {
		v.cancel()
	}

	v.seq++
	seq := v.seq
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.state = StateLoading
	v.query = q
	o.mu.Unlock()

	done := make(chan struct{})
	go o.runFetch(ctx, kind, q, seq, done)
	return done, nil
}

func (o *Orchestrator) runFetch(ctx context.Context, kind domain.RecordKind, q domain.QueryState, seq uint64, done chan<- struct{}) {
	defer close(done)

	start := o.clock()
	switch kind {
	case domain.KindBatch:
		result, err := o.fetcher.FetchBatches(ctx, q)
		o.observeFetch(kind, err, o.clock().Sub(start))
		o.applyBatchResult(q, seq, result, err)
	case domain.KindProcess:
		result, err := o.fetcher.FetchProcesses(ctx, q)
		o.observeFetch(kind, err, o.clock().Sub(start))
		o.applyProcessResult(q, seq, result, err)
	}
}

func (o *Orchestrator) applyBatchResult(q domain.QueryState, seq uint64, result domain.PageResult[domain.BatchRecord], err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := o.views[domain.KindBatch]
	if v.seq != seq {
		o.discardStale(domain.KindBatch, seq, v.seq)
		return
	}
	v.cancel = nil

	if err != nil {
		v.state = StateError
		v.errorKind = upstream.KindOf(err)
		v.errorMessage = userMessage(err)
		v.batches = domain.PageResult[domain.BatchRecord]{Page: q.Page, PageSize: q.PageSize}
		o.logger.Warn("batch fetch failed",
			zap.String("kind", upstream.KindOf(err).String()),
			zap.Error(err),
		)
		return
	}

	if q.SortColumn != "" {
		result.Items = sorting.BatchRecords(result.Items, q.SortColumn, q.SortDirection)
	}
	v.batches = result
	v.state = StateSuccess
	v.errorKind = ""
	v.errorMessage = ""
}

func (o *Orchestrator) applyProcessResult(q domain.QueryState, seq uint64, result domain.PageResult[domain.ProcessRecord], err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := o.views[domain.KindProcess]
	if v.seq != seq {
		o.discardStale(domain.KindProcess, seq, v.seq)
		return
	}
	v.cancel = nil

	if err != nil {
		v.state = StateError
		v.errorKind = upstream.KindOf(err)
		v.errorMessage = userMessage(err)
		v.processes = domain.PageResult[domain.ProcessRecord]{Page: q.Page, PageSize: q.PageSize}
		o.logger.Warn("process fetch failed",
			zap.String("kind", upstream.KindOf(err).String()),
			zap.Error(err),
		)
		return
	}

	if q.SortColumn != "" {
		result.Items = sorting.ProcessRecords(result.Items, q.SortColumn, q.SortDirection)
	}
	v.processes = result
	v.state = StateSuccess
	v.errorKind = ""
	v.errorMessage = ""
}

func (o *Orchestrator) discardStale(kind domain.RecordKind, got uint64, want uint64) {
	o.metrics.IncStaleResultDiscarded(kind.String())
	o.logger.Debug("discarded stale fetch result",
		zap.String("recordKind", kind.String()),
		zap.Uint64("resolvedSeq", got),
		zap.Uint64("currentSeq", want),
	)
}

// BatchSnapshot returns the batch view as last settled.
func (o *Orchestrator) BatchSnapshot() BatchView {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := o.views[domain.KindBatch]
	result := v.batches
	result.Items = append([]domain.BatchRecord(nil), v.batches.Items...)

	return BatchView{
		State:        v.state,
		Query:        v.query,
		Result:       result,
		ErrorKind:    v.errorKind,
		ErrorMessage: v.errorMessage,
	}
}

// ProcessSnapshot returns the process view with overrides merged at read
// time, so a decision submitted after the page loaded is visible without a
// refetch.
func (o *Orchestrator) ProcessSnapshot() ProcessView {
	o.mu.Lock()
	v := o.views[domain.KindProcess]
	snapshot := ProcessView{
		State:        v.state,
		Query:        v.query,
		Result:       v.processes,
		ErrorKind:    v.errorKind,
		ErrorMessage: v.errorMessage,
	}
	items := v.processes.Items
	o.mu.Unlock()

	snapshot.Result.Items = o.overrides.Merge(items)
	return snapshot
}

// SubmitStatus records an operator decision. Validation runs before
// anything touches the network; the write-back to the upstream is
// best-effort and its failure never undoes the local override.
func (o *Orchestrator) SubmitStatus(ctx context.Context, recordID int64, decision domain.Decision, comment string) error {
	if err := o.overrides.Put(ctx, recordID, decision, comment); err != nil {
		return err
	}
	o.metrics.IncOverrideRecorded(decision.String())

	update := upstream.StatusUpdate{
		RecordID: recordID,
		Decision: decision,
		Comment:  comment,
	}
	if record, ok := o.loadedProcess(recordID); ok {
		update.ActionType = record.ActionType
		update.InsertedAt = record.InsertedAt
		update.EffectiveAt = record.EffectiveAt
		update.UpdatedAt = record.UpdatedAt
	}

	if err := o.fetcher.SubmitStatus(ctx, update); err != nil {
		o.metrics.IncWritebackFailure()
		o.logger.Warn("status write-back failed, local override retained",
			zap.Int64("recordId", recordID),
			zap.String("decision", decision.String()),
			zap.Error(err),
		)
	}

	return nil
}

func (o *Orchestrator) loadedProcess(recordID int64) (domain.ProcessRecord, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, record := range o.views[domain.KindProcess].processes.Items {
		if record.RecordID == recordID {
			return record, true
		}
	}
	return domain.ProcessRecord{}, false
}

func (o *Orchestrator) observeFetch(kind domain.RecordKind, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = upstream.KindOf(err).String()
	}
	o.metrics.ObserveUpstreamFetch(kind.String(), outcome, duration)
}

// userMessage maps the error taxonomy to operator-facing text. Stale data is
// never shown next to these; the view's items are cleared alongside.
func userMessage(err error) string {
	switch upstream.KindOf(err) {
	case upstream.KindTimeout:
		return "The upstream system did not respond within 30 seconds. Please try again."
	case upstream.KindTransport:
		return fmt.Sprintf("The upstream system rejected the request: %s.", err)
	case upstream.KindLogical:
		return fmt.Sprintf("The upstream system reported a failure: %s.", err)
	default:
		return "Could not reach the upstream system. Check connectivity and try again."
	}
}
