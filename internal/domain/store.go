package domain

import "context"

// Store persists filings keyed by ID.
type Store interface {
	// Upsert inserts or fully overwrites the row keyed by f.ID.
	Upsert(ctx context.Context, f Filing) error
	// ListKnownIDs returns every persisted ID. A missing table yields an empty set.
	ListKnownIDs(ctx context.Context) (IDSet, error)
	// QueryByPeriod returns filings for a quarter in insertion order.
	QueryByPeriod(ctx context.Context, period Period, year int, relevantOnly bool) ([]Filing, error)
	Close() error
}

// RunLocker is implemented by stores that other processes can open too. LockRuns blocks
// until this process is the only one syncing against the store, or ctx is done.
type RunLocker interface {
	LockRuns(ctx context.Context) (unlock func(), err error)
}
