// Package store provides persistence for domains, phrases, query
// results, and visibility snapshots.
package store

import (
	"context"

	"github.com/sells-group/visibility-cli/internal/model"
)

// Store defines the persistence interface consumed by the engine and
// the HTTP surface. The store is the system of record for query results
// and the sole arbiter of whether a (phrase, model) unit already has one.
type Store interface {
	// Domains and phrases (read-only collaborators).
	GetDomain(ctx context.Context, domainID int64) (*model.Domain, error)
	FindSelectedPhrases(ctx context.Context, domainID int64) ([]model.Phrase, error)

	// Query results.
	FindResult(ctx context.Context, phraseID int64, modelName string) (*model.QueryResult, error)
	FindResultsForPhrases(ctx context.Context, phraseIDs []int64) ([]model.QueryResult, error)
	// CreateResult inserts a result unless one already exists for the
	// same (phrase, model); inserted reports whether the row was written.
	CreateResult(ctx context.Context, r *model.QueryResult) (inserted bool, err error)
	ListResultsForDomain(ctx context.Context, domainID int64) ([]model.QueryResult, error)

	// Snapshots.
	SaveSnapshot(ctx context.Context, snap *model.VisibilitySnapshot) error
	LatestSnapshot(ctx context.Context, domainID int64) (*model.VisibilitySnapshot, error)

	// Lifecycle.
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
