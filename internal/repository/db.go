package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// DBTX is the querying surface shared by *pgxpool.Pool and pgx.Tx, so
// every repository works identically inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres implementation of domain.Store.
type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Logger

	refData    *RefDataRepository
	donors     *DonorRepository
	tissues    *TissueRepository
	labware    *LabwareRepository
	samples    *SampleRepository
	operations *OperationRepository
	works      *WorkRepository
}

// NewStore creates a store backed by a connection pool.
func NewStore(pool *pgxpool.Pool, logger *logrus.Logger) *Store {
	s := newStore(pool, logger)
	s.pool = pool
	return s
}

func newStore(db DBTX, logger *logrus.Logger) *Store {
	return &Store{
		log:        logger,
		refData:    NewRefDataRepository(db, logger),
		donors:     NewDonorRepository(db, logger),
		tissues:    NewTissueRepository(db, logger),
		labware:    NewLabwareRepository(db, logger),
		samples:    NewSampleRepository(db, logger),
		operations: NewOperationRepository(db, logger),
		works:      NewWorkRepository(db, logger),
	}
}

// RefData returns the reference-data lookups.
func (s *Store) RefData() domain.ReferenceData { return s.refData }

// Donors returns the donor store.
func (s *Store) Donors() domain.DonorStore { return s.donors }

// Tissues returns the tissue store.
func (s *Store) Tissues() domain.TissueStore { return s.tissues }

// Labware returns the labware store.
func (s *Store) Labware() domain.LabwareStore { return s.labware }

// Samples returns the sample store.
func (s *Store) Samples() domain.SampleStore { return s.samples }

// Operations returns the operation store.
func (s *Store) Operations() domain.OperationStore { return s.operations }

// Works returns the work store.
func (s *Store) Works() domain.WorkStore { return s.works }

// Transact runs fn against a store bound to one transaction. An error
// from fn (including a unique-constraint violation from a racing
// registration) rolls the whole transaction back; nothing partial ever
// commits.
func (s *Store) Transact(ctx context.Context, fn func(domain.Store) error) error {
	if s.pool == nil {
		// Already transaction-bound; nested Transact joins the outer
		// transaction.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(newStore(tx, s.log)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
