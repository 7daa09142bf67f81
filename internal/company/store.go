package company

import (
	"context"
	"errors"
)

// ErrIntegrity reports a referential-integrity anomaly, such as re-parenting
// rows onto a company that no longer exists.
var ErrIntegrity = errors.New("company: integrity violation")

// Reader is the read side of the company store.
type Reader interface {
	// ListCompanies returns every company ordered by id.
	ListCompanies(ctx context.Context) ([]Company, error)
	// GetCompany returns nil, nil when the company does not exist.
	GetCompany(ctx context.Context, id int64) (*Company, error)
	GetSignals(ctx context.Context, companyID int64) ([]Signal, error)
	GetPrograms(ctx context.Context, companyID int64) ([]Program, error)
}

// Writer holds the mutations the engine performs.
type Writer interface {
	UpdateCompany(ctx context.Context, id int64, p Patch) error
	ReassignSignals(ctx context.Context, fromID, toID int64) (int64, error)
	ReassignPrograms(ctx context.Context, fromID, toID int64) (int64, error)
	// DeleteCompany returns ErrIntegrity when no row was deleted.
	DeleteCompany(ctx context.Context, id int64) error
	// SnapshotHeatScores copies heat_score into previous_heat_score for
	// every company.
	SnapshotHeatScores(ctx context.Context) error
	SetHeatScore(ctx context.Context, id int64, score int) error
}

// Tx is a store view bound to one transaction.
type Tx interface {
	Reader
	Writer
}

// Store is the persistence contract the engine depends on.
type Store interface {
	Reader
	Writer
	// InTx runs fn in a transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Ingester inserts new records. Only ingestion (the seed importer) uses it.
type Ingester interface {
	InsertCompany(ctx context.Context, c *Company) error
	InsertSignal(ctx context.Context, s *Signal) error
	InsertProgram(ctx context.Context, p *Program) error
}
