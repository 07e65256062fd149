package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// OperationRepository handles operation and action persistence.
type OperationRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewOperationRepository creates a new operation repository.
func NewOperationRepository(db DBTX, logger *logrus.Logger) *OperationRepository {
	return &OperationRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts an operation with its actions and returns the populated
// operation. Operations are append-only; there is no update path.
func (r *OperationRepository) Create(ctx context.Context, opType, username string, actions []domain.Action) (*domain.Operation, error) {
	op := &domain.Operation{
		OperationType: opType,
		Username:      username,
	}

	query := `
		INSERT INTO operations (operation_type, username)
		VALUES ($1, $2)
		RETURNING id, performed_at`

	err := r.db.QueryRow(ctx, query, opType, username).Scan(&op.ID, &op.PerformedAt)
	if err != nil {
		return nil, fmt.Errorf("creating %s operation: %w", opType, err)
	}

	actionQuery := `
		INSERT INTO actions (operation_id, source_slot_id, dest_slot_id, sample_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	for _, action := range actions {
		if err := r.db.QueryRow(ctx, actionQuery,
			op.ID, action.SourceSlot, action.DestSlot, action.SampleID,
		).Scan(&action.ID); err != nil {
			return nil, fmt.Errorf("creating action for operation %d: %w", op.ID, err)
		}
		op.Actions = append(op.Actions, action)
	}

	r.log.WithFields(logrus.Fields{
		"operation_id":   op.ID,
		"operation_type": opType,
		"username":       username,
		"actions":        len(op.Actions),
	}).Info("Operation created")

	return op, nil
}

// LinkBioRisks records the bio risk of each sample, attributed to the
// operation that registered it.
func (r *OperationRepository) LinkBioRisks(ctx context.Context, links []domain.SampleBioRisk) error {
	query := `
		INSERT INTO sample_bio_risks (sample_id, bio_risk_id, operation_id)
		VALUES ($1, $2, $3)`

	for _, link := range links {
		if _, err := r.db.Exec(ctx, query, link.SampleID, link.BioRiskID, link.OperationID); err != nil {
			return fmt.Errorf("linking bio risk %d to sample %d: %w", link.BioRiskID, link.SampleID, err)
		}
	}
	return nil
}
