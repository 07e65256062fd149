package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// DonorRepository handles donor persistence.
type DonorRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewDonorRepository creates a new donor repository.
func NewDonorRepository(db DBTX, logger *logrus.Logger) *DonorRepository {
	return &DonorRepository{
		db:  db,
		log: logger,
	}
}

// FindByName retrieves a donor by name, case-insensitively. Absence is
// a nil donor with a nil error.
func (r *DonorRepository) FindByName(ctx context.Context, name string) (*domain.Donor, error) {
	query := `
		SELECT d.id, d.donor_name, d.life_stage,
		       s.id, s.name, s.enabled, s.requires_hmdmc
		FROM donors d
		JOIN species s ON s.id = d.species_id
		WHERE lower(d.donor_name) = lower($1)`

	var donor domain.Donor
	var species domain.Species
	var lifeStage string
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&donor.ID,
		&donor.DonorName,
		&lifeStage,
		&species.ID,
		&species.Name,
		&species.Enabled,
		&species.RequiresHmdmc,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding donor %q: %w", name, err)
	}
	donor.LifeStage = domain.LifeStage(lifeStage)
	donor.Species = &species
	return &donor, nil
}

// Create inserts a new donor and fills in its assigned ID. The unique
// index on lower(donor_name) is the backstop against racing inserts.
func (r *DonorRepository) Create(ctx context.Context, donor *domain.Donor) error {
	query := `
		INSERT INTO donors (donor_name, life_stage, species_id)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		donor.DonorName,
		string(donor.LifeStage),
		donor.Species.ID,
	).Scan(&donor.ID)
	if err != nil {
		return fmt.Errorf("creating donor %q: %w", donor.DonorName, err)
	}

	r.log.WithFields(logrus.Fields{
		"donor_id":   donor.ID,
		"donor_name": donor.DonorName,
		"species":    donor.Species.Name,
	}).Info("Donor created")

	return nil
}
