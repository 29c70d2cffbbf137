package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ellenzeng3/lda-filing-bot/internal/classifier"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/lda"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/memory"
	"github.com/ellenzeng3/lda-filing-bot/internal/persistence/sqlite"
)

type fakeFetcher struct {
	records []domain.RawFiling
	err     error
	calls   atomic.Int32
	// filterKnown drops known ids the way the real fetcher does with early stop off.
	filterKnown bool
	block       chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ lda.Query, known domain.IDSet) (lda.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	var out []domain.RawFiling
	for _, r := range f.records {
		if f.filterKnown && known.Has(r.ID()) {
			continue
		}
		out = append(out, r)
	}
	return lda.Result{Records: out, Pages: 1}, f.err
}

type flakyStore struct {
	*memory.Store
	listErr    error
	failUpsert map[string]bool
	upserts    int
}

func (s *flakyStore) ListKnownIDs(ctx context.Context) (domain.IDSet, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.Store.ListKnownIDs(ctx)
}

func (s *flakyStore) Upsert(ctx context.Context, f domain.Filing) error {
	s.upserts++
	if s.failUpsert[f.ID] {
		return fmt.Errorf("%w: disk full", domain.ErrStorageWrite)
	}
	return s.Store.Upsert(ctx, f)
}

func raw(id, client, desc string, income any) domain.RawFiling {
	r := domain.RawFiling{
		"filing_uuid":   id,
		"filing_period": "second_quarter",
		"filing_year":   float64(2025),
		"registrant":    map[string]any{"name": "Capitol Partners"},
		"client":        map[string]any{"name": client},
		"lobbying_activities": []any{
			map[string]any{"description": desc},
		},
	}
	if income != nil {
		r["income"] = income
	}
	return r
}

var req = Request{Period: domain.PeriodSecondQuarter, Year: 2025}

func newPipeline(store domain.Store, f Fetcher) *Pipeline {
	logger, _ := test.NewNullLogger()
	return New(store, f, classifier.New(classifier.DefaultWatchlist()), WithLogger(logger))
}

func TestRunStoresAndReturnsNewRelevant(t *testing.T) {
	store := memory.New()
	f := &fakeFetcher{records: []domain.RawFiling{
		raw("a", "Acme Bakery LLC", "AI privacy platform", float64(40000)),
		raw("b", "Acme Bakery LLC", "bread tariffs", float64(10000)),
		raw("c", "Google LLC", "tax policy", nil),
	}}
	p := newPipeline(store, f)

	report, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StateDone, report.State)
	require.Equal(t, StateDone, p.State())
	require.Equal(t, 3, report.NewRecords)
	require.Len(t, report.NewRelevant, 1)
	require.Equal(t, "a", report.NewRelevant[0].ID)
	require.Equal(t, 3, store.Len())

	stored, err := store.QueryByPeriod(context.Background(), domain.PeriodSecondQuarter, 2025, true)
	require.NoError(t, err)
	require.Len(t, stored, 2, "c is relevant by company and stored even though it is not substantive")
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "filings.db"))
	require.NoError(t, err)
	defer store.Close()

	f := &fakeFetcher{records: []domain.RawFiling{
		raw("a", "Microsoft Corporation", "cloud", "1,500"),
		raw("b", "Acme Bakery LLC", "bread tariffs", float64(10)),
	}}
	p := newPipeline(store, f)

	first, err := p.Run(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.NewRelevant, 1)
	after, err := store.QueryByPeriod(ctx, req.Period, req.Year, false)
	require.NoError(t, err)

	second, err := p.Run(ctx, req)
	require.NoError(t, err)
	require.Empty(t, second.NewRelevant)
	require.Zero(t, second.NewRecords)
	for _, o := range second.Outcomes {
		require.Equal(t, StatusKnown, o.Status)
	}
	again, err := store.QueryByPeriod(ctx, req.Period, req.Year, false)
	require.NoError(t, err)
	require.Equal(t, after, again)
}

func TestRunSkipsIntraBatchDuplicates(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	f := &fakeFetcher{records: []domain.RawFiling{
		raw("a", "Google", "AI", float64(1)),
		raw("a", "Google", "AI again", float64(2)),
	}}
	report, err := newPipeline(store, f).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, store.upserts)
	require.Equal(t, StatusDuplicate, report.Outcomes[1].Status)
	require.Len(t, report.NewRelevant, 1)
}

func TestRunDedupKeepsLatestVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	p := newPipeline(store, &fakeFetcher{records: []domain.RawFiling{raw("a", "Google", "AI", float64(1))}})
	_, err := p.Run(ctx, req)
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, domain.Filing{ID: "a", Period: req.Period, Year: req.Year, ClientName: "Google Revised"}))
	got, err := store.QueryByPeriod(ctx, req.Period, req.Year, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Google Revised", got[0].ClientName)
}

func TestRunNeverNotifiesNonSubstantive(t *testing.T) {
	f := &fakeFetcher{records: []domain.RawFiling{raw("a", "Apple Inc.", "AI privacy platform", nil)}}
	report, err := newPipeline(memory.New(), f).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewRecords)
	require.Empty(t, report.NewRelevant)
}

func TestRunSkipsMalformedAndStoreFailures(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failUpsert: map[string]bool{"b": true}}
	f := &fakeFetcher{records: []domain.RawFiling{
		{"client": map[string]any{"name": "No Id"}},
		raw("b", "Google", "AI", float64(1)),
		raw("c", "Google", "AI", float64(1)),
	}}
	report, err := newPipeline(store, f).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, StatusMalformed, report.Outcomes[0].Status)
	require.Equal(t, StatusStoreFailure, report.Outcomes[1].Status)
	require.Equal(t, StatusInserted, report.Outcomes[2].Status)
	require.Equal(t, 1, report.NewRecords)
	require.Len(t, report.NewRelevant, 1)
}

func TestRunKnownIDReadFailureIsFullResync(t *testing.T) {
	store := &flakyStore{Store: memory.New(), listErr: errors.New("locked")}
	f := &fakeFetcher{records: []domain.RawFiling{raw("a", "Google", "AI", float64(1))}}
	report, err := newPipeline(store, f).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewRecords)
}

func TestRunFetchFailureWritesNothing(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	f := &fakeFetcher{err: fmt.Errorf("%w: dial tcp: timeout", domain.ErrTransport)}
	p := newPipeline(store, f)

	report, err := p.Run(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrTransport)
	require.Equal(t, StateFailed, report.State)
	require.Equal(t, StateFailed, p.State())
	require.Zero(t, store.upserts)
}

func TestRunPartialFetchProcessesRecords(t *testing.T) {
	f := &fakeFetcher{
		records: []domain.RawFiling{raw("a", "Google", "AI", float64(1))},
		err:     fmt.Errorf("%w: page 2: status 500", domain.ErrTransport),
	}
	report, err := newPipeline(memory.New(), f).Run(context.Background(), req)
	require.NoError(t, err)
	require.True(t, report.Partial)
	require.NotEmpty(t, report.Error)
	require.Equal(t, 1, report.NewRecords)
}

func TestRunScopedToClient(t *testing.T) {
	store := memory.New()
	f := &fakeFetcher{records: []domain.RawFiling{
		raw("a", "X Corp", "AI", float64(1)),
		raw("b", "Nexus Corp", "AI", float64(1)),
	}}
	report, err := newPipeline(store, f).Run(context.Background(), Request{Period: req.Period, Year: req.Year, ClientName: "x"})
	require.NoError(t, err)
	require.Equal(t, StatusInserted, report.Outcomes[0].Status)
	require.Equal(t, StatusOutOfScope, report.Outcomes[1].Status)
	require.Equal(t, 1, store.Len())
}

func TestRunSerializesConcurrentCallers(t *testing.T) {
	store := memory.New()
	f := &fakeFetcher{
		records:     []domain.RawFiling{raw("a", "Google", "AI", float64(1))},
		filterKnown: true,
		block:       make(chan struct{}),
	}
	p := newPipeline(store, f)

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.Run(context.Background(), req)
			if err != nil {
				t.Errorf("run %d: %v", i, err)
			}
			reports[i] = r
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(1), f.calls.Load(), "second run must wait for the first")
	close(f.block)
	wg.Wait()

	require.Equal(t, 1, reports[0].NewRecords+reports[1].NewRecords)
	require.Equal(t, 1, store.Len())
}

func TestRunSerializesPipelinesSharingOneDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "filings.db")
	first, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer first.Close()
	second, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	records := []domain.RawFiling{raw("a", "Google", "AI", float64(1))}
	f1 := &fakeFetcher{records: records, filterKnown: true, block: make(chan struct{})}
	f2 := &fakeFetcher{records: records, filterKnown: true}
	p1 := newPipeline(first, f1)
	p2 := newPipeline(second, f2)

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := p1.Run(ctx, req)
		if err != nil {
			t.Errorf("first run: %v", err)
		}
		reports[0] = r
	}()
	require.Eventually(t, func() bool { return f1.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := p2.Run(ctx, req)
		if err != nil {
			t.Errorf("second run: %v", err)
		}
		reports[1] = r
	}()
	time.Sleep(250 * time.Millisecond)
	require.Zero(t, f2.calls.Load(), "second pipeline must wait for the database lock")

	close(f1.block)
	wg.Wait()

	require.Equal(t, int32(1), f2.calls.Load())
	require.Len(t, reports[0].NewRelevant, 1)
	require.Empty(t, reports[1].NewRelevant, "the second run sees the first run's rows as known")
	stored, err := second.QueryByPeriod(ctx, req.Period, req.Year, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestRunFailsWhenDatabaseLockIsHeld(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "filings.db")
	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	unlock, err := store.LockRuns(ctx)
	require.NoError(t, err)
	defer unlock()

	f := &fakeFetcher{records: []domain.RawFiling{raw("a", "Google", "AI", float64(1))}}
	p := newPipeline(store, f)
	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()

	report, err := p.Run(waitCtx, req)
	require.ErrorIs(t, err, domain.ErrRunLocked)
	require.Equal(t, StateFailed, report.State)
	require.Zero(t, f.calls.Load())
}
