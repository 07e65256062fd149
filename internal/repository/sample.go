package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// SampleRepository handles sample persistence.
type SampleRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewSampleRepository creates a new sample repository.
func NewSampleRepository(db DBTX, logger *logrus.Logger) *SampleRepository {
	return &SampleRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new sample and fills in its assigned ID.
func (r *SampleRepository) Create(ctx context.Context, sample *domain.Sample) error {
	query := `
		INSERT INTO samples (tissue_id, bio_state_id, section)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		sample.Tissue.ID,
		sample.BioState.ID,
		sample.Section,
	).Scan(&sample.ID)
	if err != nil {
		return fmt.Errorf("creating sample for tissue %q: %w", sample.Tissue.ExternalName, err)
	}

	r.log.WithFields(logrus.Fields{
		"sample_id": sample.ID,
		"tissue":    sample.Tissue.ExternalName,
		"bio_state": sample.BioState.Name,
	}).Info("Sample created")

	return nil
}
