// Package pipeline runs one sync of a filing period: load known ids, fetch, normalize, classify, store.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ellenzeng3/lda-filing-bot/internal/classifier"
	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
	"github.com/ellenzeng3/lda-filing-bot/internal/lda"
	"github.com/ellenzeng3/lda-filing-bot/internal/normalizer"
	"github.com/ellenzeng3/lda-filing-bot/internal/observability"
)

// State is the run lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateLoadingKnownIDs State = "loading_known_ids"
	StateFetching        State = "fetching"
	StateProcessingBatch State = "processing_batch"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Status is the per-record result of a batch.
type Status string

const (
	StatusInserted     Status = "inserted"
	StatusKnown        Status = "skipped_known"
	StatusDuplicate    Status = "skipped_duplicate"
	StatusMalformed    Status = "malformed"
	StatusOutOfScope   Status = "out_of_scope"
	StatusStoreFailure Status = "store_error"
)

// Outcome records what happened to one remote record.
type Outcome struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Fetcher is the incremental reader, satisfied by *lda.Client.
type Fetcher interface {
	Fetch(ctx context.Context, q lda.Query, known domain.IDSet) (lda.Result, error)
}

// Request selects the period to sync. ClientName scopes the fetch to one company.
type Request struct {
	Period     domain.Period `json:"period"`
	Year       int           `json:"year"`
	ClientName string        `json:"client_name,omitempty"`
}

func (r Request) String() string {
	s := string(r.Period) + " " + strconv.Itoa(r.Year)
	if r.ClientName != "" {
		s += " (" + r.ClientName + ")"
	}
	return s
}

// Report summarises a run.
type Report struct {
	RunID          string          `json:"run_id"`
	Request        Request         `json:"request"`
	State          State           `json:"state"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Pages          int             `json:"pages"`
	Fetched        int             `json:"fetched"`
	NewRecords     int             `json:"new_records"`
	Partial        bool            `json:"partial"`
	EarlyStopped   bool            `json:"early_stopped"`
	OrderViolation bool            `json:"order_violation"`
	Error          string          `json:"error,omitempty"`
	Outcomes       []Outcome       `json:"outcomes"`
	NewRelevant    []domain.Filing `json:"new_relevant"`
}

// Pipeline serialises runs against one store.
type Pipeline struct {
	mu         sync.Mutex
	store      domain.Store
	fetcher    Fetcher
	classifier *classifier.Classifier
	logger     logrus.FieldLogger
	now        func() time.Time

	stateMu sync.RWMutex
	state   State
}

// Option customises the pipeline.
type Option func(*Pipeline)

// WithLogger overrides the default logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a Pipeline.
func New(store domain.Store, fetcher Fetcher, cls *classifier.Classifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		fetcher:    fetcher,
		classifier: cls,
		logger:     logrus.StandardLogger(),
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports the lifecycle state of the current or last run.
func (p *Pipeline) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s State, report *Report) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
	report.State = s
}

// Run executes one sync. Concurrent callers wait their turn, across processes too when the
// store implements domain.RunLocker.
// The error is non-nil only when the run failed before any record was processed.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := Report{RunID: uuid.NewString(), Request: req, StartedAt: p.now().UTC(), Outcomes: []Outcome{}, NewRelevant: []domain.Filing{}}
	log := p.logger.WithFields(logrus.Fields{"run_id": report.RunID, "period": req.Period, "year": req.Year})
	start := time.Now()
	defer func() { observability.SyncDuration.Observe(time.Since(start).Seconds()) }()

	if locker, ok := p.store.(domain.RunLocker); ok {
		unlock, err := locker.LockRuns(ctx)
		if err != nil {
			report.Error = err.Error()
			p.finish(&report, StateFailed)
			log.WithError(err).Error("sync failed")
			return report, fmt.Errorf("sync %s: %w", req, err)
		}
		defer unlock()
	}

	p.setState(StateLoadingKnownIDs, &report)
	known, err := p.store.ListKnownIDs(ctx)
	if err != nil {
		log.WithError(err).Warn("known ids unavailable, running full resync")
		known = domain.IDSet{}
	}
	if known == nil {
		known = domain.IDSet{}
	}

	p.setState(StateFetching, &report)
	res, err := p.fetcher.Fetch(ctx, lda.Query{Period: req.Period, Year: req.Year, ClientName: req.ClientName}, known)
	report.Pages = res.Pages
	report.Fetched = len(res.Records)
	report.EarlyStopped = res.EarlyStopped
	report.OrderViolation = res.OrderViolation
	if err != nil {
		report.Error = err.Error()
		if len(res.Records) == 0 {
			p.finish(&report, StateFailed)
			log.WithError(err).Error("sync failed")
			return report, fmt.Errorf("sync %s: %w", req, err)
		}
		report.Partial = true
		log.WithError(err).WithField("records", len(res.Records)).Warn("partial fetch, processing what arrived")
	}

	p.setState(StateProcessingBatch, &report)
	batch := make(domain.IDSet, len(res.Records))
	for _, raw := range res.Records {
		out, filing := p.process(ctx, raw, req, known, batch)
		report.Outcomes = append(report.Outcomes, out)
		if out.Status != StatusInserted {
			observability.RecordsSkipped.WithLabelValues(string(out.Status)).Inc()
			if out.Status == StatusMalformed || out.Status == StatusStoreFailure {
				log.WithField("filing_id", out.ID).WithField("reason", out.Reason).Warn("record skipped")
			}
			continue
		}
		report.NewRecords++
		observability.FilingsIngested.WithLabelValues(strconv.FormatBool(filing.Relevant)).Inc()
		if filing.Relevant && filing.Substantive() {
			report.NewRelevant = append(report.NewRelevant, filing)
		}
	}

	p.finish(&report, StateDone)
	log.WithFields(logrus.Fields{
		"fetched":      report.Fetched,
		"new":          report.NewRecords,
		"new_relevant": len(report.NewRelevant),
		"partial":      report.Partial,
	}).Info("sync complete")
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, raw domain.RawFiling, req Request, known, batch domain.IDSet) (Outcome, domain.Filing) {
	id := raw.ID()
	switch {
	case id != "" && batch.Has(id):
		return Outcome{ID: id, Status: StatusDuplicate}, domain.Filing{}
	case id != "" && known.Has(id):
		return Outcome{ID: id, Status: StatusKnown}, domain.Filing{}
	}

	f, err := normalizer.Normalize(raw)
	if err != nil {
		return Outcome{ID: id, Status: StatusMalformed, Reason: err.Error()}, domain.Filing{}
	}
	batch.Add(id)

	if req.ClientName != "" && !classifier.IsExactCompany(f.ClientName, req.ClientName) {
		return Outcome{ID: id, Status: StatusOutOfScope, Reason: "client " + f.ClientName}, domain.Filing{}
	}

	f.Relevant = p.classifier.Classify(f)
	if err := p.store.Upsert(ctx, f); err != nil {
		return Outcome{ID: id, Status: StatusStoreFailure, Reason: err.Error()}, domain.Filing{}
	}
	known.Add(id)
	return Outcome{ID: id, Status: StatusInserted}, f
}

func (p *Pipeline) finish(report *Report, s State) {
	report.FinishedAt = p.now().UTC()
	p.setState(s, report)
	label := string(s)
	if s == StateDone && report.Partial {
		label = "partial"
	}
	observability.SyncRuns.WithLabelValues(label).Inc()
	if s == StateDone && !report.Partial {
		observability.RecordSyncSuccess(report.FinishedAt)
	}
}
