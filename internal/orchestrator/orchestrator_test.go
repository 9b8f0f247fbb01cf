package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kursadbilgin/hrp-console/internal/domain"
	"github.com/kursadbilgin/hrp-console/internal/override"
	"github.com/kursadbilgin/hrp-console/internal/upstream"
)

type fakeFetcher struct {
	fetchBatchesFn   func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error)
	fetchProcessesFn func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error)
	submitStatusFn   func(ctx context.Context, update upstream.StatusUpdate) error

	fetchCalls atomic.Int64
}

func (f *fakeFetcher) FetchBatches(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
	f.fetchCalls.Add(1)
	if f.fetchBatchesFn == nil {
		return domain.PageResult[domain.BatchRecord]{}, nil
	}
	return f.fetchBatchesFn(ctx, q)
}

func (f *fakeFetcher) FetchProcesses(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error) {
	f.fetchCalls.Add(1)
	if f.fetchProcessesFn == nil {
		return domain.PageResult[domain.ProcessRecord]{}, nil
	}
	return f.fetchProcessesFn(ctx, q)
}

func (f *fakeFetcher) SubmitStatus(ctx context.Context, update upstream.StatusUpdate) error {
	if f.submitStatusFn == nil {
		return nil
	}
	return f.submitStatusFn(ctx, update)
}

func newTestOrchestrator(t *testing.T, fetcher Fetcher) (*Orchestrator, *override.Store) {
	t.Helper()

	store := override.NewStore(context.Background(), nil, nil)
	o, err := New(fetcher, store, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o, store
}

func await(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not settle in time")
	}
}

func TestUpdateQueryHappyPath(t *testing.T) {
	t.Parallel()

	var gotQuery domain.QueryState
	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			gotQuery = q
			return domain.PageResult[domain.BatchRecord]{
				Items:      []domain.BatchRecord{{BatchID: 1}, {BatchID: 2}, {BatchID: 3}},
				TotalCount: 3,
				Page:       q.Page,
				PageSize:   q.PageSize,
			}, nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, err := o.UpdateQuery(domain.KindBatch, domain.QueryState{
		Page:      0,
		PageSize:  50,
		DateRange: domain.RangeLast30Days,
	})
	if err != nil {
		t.Fatalf("UpdateQuery() error = %v", err)
	}
	await(t, done)

	if gotQuery.Page != 0 || gotQuery.PageSize != 50 || gotQuery.DateRange != domain.RangeLast30Days {
		t.Fatalf("fetcher received %+v", gotQuery)
	}

	snapshot := o.BatchSnapshot()
	if snapshot.State != StateSuccess {
		t.Fatalf("state = %s, want SUCCESS", snapshot.State)
	}
	if len(snapshot.Result.Items) != 3 || snapshot.Result.TotalCount != 3 {
		t.Fatalf("result = %+v", snapshot.Result)
	}
	if snapshot.Result.Page != 0 {
		t.Fatalf("page = %d, want 0", snapshot.Result.Page)
	}
}

func TestLastRequestWins(t *testing.T) {
	t.Parallel()

	releaseFirst := make(chan struct{})
	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			if q.Search == "first" {
				// Resolve only after the second request has settled.
				<-releaseFirst
				return domain.PageResult[domain.BatchRecord]{
					Items:      []domain.BatchRecord{{BatchID: 111}},
					TotalCount: 1,
				}, nil
			}
			return domain.PageResult[domain.BatchRecord]{
				Items:      []domain.BatchRecord{{BatchID: 222}},
				TotalCount: 1,
			}, nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	firstDone, err := o.UpdateQuery(domain.KindBatch, domain.QueryState{Search: "first"})
	if err != nil {
		t.Fatalf("UpdateQuery() error = %v", err)
	}
	secondDone, err := o.UpdateQuery(domain.KindBatch, domain.QueryState{Search: "second"})
	if err != nil {
		t.Fatalf("UpdateQuery() error = %v", err)
	}

	await(t, secondDone)
	close(releaseFirst)
	await(t, firstDone)

	snapshot := o.BatchSnapshot()
	if snapshot.State != StateSuccess {
		t.Fatalf("state = %s, want SUCCESS", snapshot.State)
	}
	if len(snapshot.Result.Items) != 1 || snapshot.Result.Items[0].BatchID != 222 {
		t.Fatalf("late first result must be discarded, got %+v", snapshot.Result.Items)
	}
}

func TestLateFailureDoesNotOverwriteNewerSuccess(t *testing.T) {
	t.Parallel()

	releaseFirst := make(chan struct{})
	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			if q.Search == "first" {
				<-releaseFirst
				return domain.PageResult[domain.BatchRecord]{}, &upstream.Error{Kind: upstream.KindTimeout}
			}
			return domain.PageResult[domain.BatchRecord]{
				Items:      []domain.BatchRecord{{BatchID: 7}},
				TotalCount: 1,
			}, nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	firstDone, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{Search: "first"})
	secondDone, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{Search: "second"})

	await(t, secondDone)
	close(releaseFirst)
	await(t, firstDone)

	snapshot := o.BatchSnapshot()
	if snapshot.State != StateSuccess || snapshot.ErrorMessage != "" {
		t.Fatalf("stale failure leaked into view: %+v", snapshot)
	}
}

func TestErrorStateClearsItems(t *testing.T) {
	t.Parallel()

	failNext := false
	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			if failNext {
				return domain.PageResult[domain.BatchRecord]{}, &upstream.Error{Kind: upstream.KindTransport, StatusCode: 502}
			}
			return domain.PageResult[domain.BatchRecord]{
				Items:      []domain.BatchRecord{{BatchID: 1}},
				TotalCount: 40,
			}, nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{})
	await(t, done)

	failNext = true
	done, _ = o.UpdateQuery(domain.KindBatch, domain.QueryState{Search: "boom"})
	await(t, done)

	snapshot := o.BatchSnapshot()
	if snapshot.State != StateError {
		t.Fatalf("state = %s, want ERROR", snapshot.State)
	}
	if len(snapshot.Result.Items) != 0 || snapshot.Result.TotalCount != 0 {
		t.Fatal("stale data must never be shown next to an error")
	}
	if snapshot.ErrorMessage == "" {
		t.Fatal("error state needs a user-presentable message")
	}
}

func TestTimeoutProducesDistinctMessage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			return domain.PageResult[domain.BatchRecord]{}, &upstream.Error{Kind: upstream.KindTimeout}
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{})
	await(t, done)

	snapshot := o.BatchSnapshot()
	if !strings.Contains(snapshot.ErrorMessage, "30 seconds") {
		t.Fatalf("timeout message should be distinct, got %q", snapshot.ErrorMessage)
	}
}

func TestNonPageChangeResetsPage(t *testing.T) {
	t.Parallel()

	var gotPages []int
	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			gotPages = append(gotPages, q.Page)
			return domain.PageResult[domain.BatchRecord]{}, nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{Page: 0, PageSize: 50})
	await(t, done)

	// Page-only change keeps the requested page.
	done, _ = o.UpdateQuery(domain.KindBatch, domain.QueryState{Page: 4, PageSize: 50})
	await(t, done)

	// Search change resets the page even though page 4 was asked for.
	done, _ = o.UpdateQuery(domain.KindBatch, domain.QueryState{Page: 4, PageSize: 50, Search: "x"})
	await(t, done)

	if len(gotPages) != 3 || gotPages[1] != 4 || gotPages[2] != 0 {
		t.Fatalf("pages issued = %v, want [0 4 0]", gotPages)
	}
}

func TestKindsKeepIndependentState(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		fetchBatchesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.BatchRecord], error) {
			return domain.PageResult[domain.BatchRecord]{Items: []domain.BatchRecord{{BatchID: 5}}, TotalCount: 1}, nil
		},
		fetchProcessesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error) {
			return domain.PageResult[domain.ProcessRecord]{}, &upstream.Error{Kind: upstream.KindLogical, Message: "boom"}
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindBatch, domain.QueryState{})
	await(t, done)
	done, _ = o.UpdateQuery(domain.KindProcess, domain.QueryState{})
	await(t, done)

	if got := o.BatchSnapshot().State; got != StateSuccess {
		t.Fatalf("batch state = %s, want SUCCESS", got)
	}
	if got := o.ProcessSnapshot().State; got != StateError {
		t.Fatalf("process state = %s, want ERROR", got)
	}
}

func TestSubmitStatusValidationBlocksNetwork(t *testing.T) {
	t.Parallel()

	writebackCalled := false
	fetcher := &fakeFetcher{
		submitStatusFn: func(ctx context.Context, update upstream.StatusUpdate) error {
			writebackCalled = true
			return nil
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	err := o.SubmitStatus(context.Background(), 10, domain.DecisionOthers, "")
	if err == nil {
		t.Fatal("SubmitStatus() expected validation error")
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if writebackCalled {
		t.Fatal("validation failure must not reach the network")
	}
	if got := fetcher.fetchCalls.Load(); got != 0 {
		t.Fatalf("fetch invocations = %d, want 0", got)
	}
}

func TestSubmitStatusMergesImmediatelyDespiteWritebackFailure(t *testing.T) {
	t.Parallel()

	var gotUpdate upstream.StatusUpdate
	fetcher := &fakeFetcher{
		fetchProcessesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error) {
			return domain.PageResult[domain.ProcessRecord]{
				Items: []domain.ProcessRecord{
					{RecordID: 10, Status: "Fail", ActionType: "UPDATE", InsertedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
				},
				TotalCount: 1,
			}, nil
		},
		submitStatusFn: func(ctx context.Context, update upstream.StatusUpdate) error {
			gotUpdate = update
			return &upstream.Error{Kind: upstream.KindNetwork, Message: "unreachable"}
		},
	}

	o, _ := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindProcess, domain.QueryState{})
	await(t, done)

	if err := o.SubmitStatus(context.Background(), 10, domain.DecisionOthers, "checked manually"); err != nil {
		t.Fatalf("SubmitStatus() must not fail on write-back error, got %v", err)
	}

	snapshot := o.ProcessSnapshot()
	if snapshot.Result.Items[0].Status != "Others" {
		t.Fatalf("status = %q, want Others merged without a refetch", snapshot.Result.Items[0].Status)
	}

	if gotUpdate.RecordID != 10 || gotUpdate.ActionType != "UPDATE" {
		t.Fatalf("write-back payload = %+v, want details from the loaded record", gotUpdate)
	}
	if gotUpdate.InsertedAt.IsZero() {
		t.Fatal("write-back should carry the record's timestamps")
	}
}

func TestProcessSnapshotMergeDoesNotMutateStoredPage(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		fetchProcessesFn: func(ctx context.Context, q domain.QueryState) (domain.PageResult[domain.ProcessRecord], error) {
			return domain.PageResult[domain.ProcessRecord]{
				Items:      []domain.ProcessRecord{{RecordID: 1, Status: "Fail"}},
				TotalCount: 1,
			}, nil
		},
	}

	o, store := newTestOrchestrator(t, fetcher)

	done, _ := o.UpdateQuery(domain.KindProcess, domain.QueryState{})
	await(t, done)

	if err := store.Put(context.Background(), 1, domain.DecisionReviewed, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	first := o.ProcessSnapshot()
	if first.Result.Items[0].Status != "Reviewed" {
		t.Fatalf("merged status = %q, want Reviewed", first.Result.Items[0].Status)
	}

	// The raw page must stay pristine so future merges start from the
	// upstream truth.
	first.Result.Items[0].Status = "tampered"
	second := o.ProcessSnapshot()
	if second.Result.Items[0].Status != "Reviewed" {
		t.Fatalf("stored page was mutated, got %q", second.Result.Items[0].Status)
	}
}
