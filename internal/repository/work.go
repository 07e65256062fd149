package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// WorkRepository resolves works and links operations to them.
type WorkRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewWorkRepository creates a new work repository.
func NewWorkRepository(db DBTX, logger *logrus.Logger) *WorkRepository {
	return &WorkRepository{
		db:  db,
		log: logger,
	}
}

// FindByWorkNumbers bulk-retrieves works by work number,
// case-insensitively. Absent numbers are simply not in the result.
func (r *WorkRepository) FindByWorkNumbers(ctx context.Context, workNumbers []string) ([]*domain.Work, error) {
	if len(workNumbers) == 0 {
		return nil, nil
	}

	lower := make([]string, len(workNumbers))
	for i, number := range workNumbers {
		lower[i] = strings.ToLower(strings.TrimSpace(number))
	}

	query := `
		SELECT id, work_number, status
		FROM works
		WHERE lower(work_number) = ANY($1)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, lower)
	if err != nil {
		return nil, fmt.Errorf("finding works: %w", err)
	}
	defer rows.Close()

	var works []*domain.Work
	for rows.Next() {
		var work domain.Work
		var status string
		if err := rows.Scan(&work.ID, &work.WorkNumber, &status); err != nil {
			return nil, fmt.Errorf("scanning work: %w", err)
		}
		work.Status = domain.WorkStatus(status)
		works = append(works, &work)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating works: %w", err)
	}
	return works, nil
}

// LinkOperations attaches every operation to every work. The conflict
// clause makes the link idempotent within a retried transaction.
func (r *WorkRepository) LinkOperations(ctx context.Context, workIDs, operationIDs []int) error {
	if len(workIDs) == 0 || len(operationIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO work_operations (work_id, operation_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	for _, workID := range workIDs {
		for _, opID := range operationIDs {
			if _, err := r.db.Exec(ctx, query, workID, opID); err != nil {
				return fmt.Errorf("linking operation %d to work %d: %w", opID, workID, err)
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"works":      len(workIDs),
		"operations": len(operationIDs),
	}).Info("Operations linked to works")

	return nil
}
