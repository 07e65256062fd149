package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// TissueRepository handles tissue persistence.
type TissueRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewTissueRepository creates a new tissue repository.
func NewTissueRepository(db DBTX, logger *logrus.Logger) *TissueRepository {
	return &TissueRepository{
		db:  db,
		log: logger,
	}
}

const tissueSelect = `
	SELECT t.id, t.external_name, t.replicate, t.collection_date,
	       sl.id, sl.tissue_type_id, sl.code, sl.name, sl.enabled,
	       tt.id, tt.name, tt.enabled,
	       d.id, d.donor_name, d.life_stage,
	       sp.id, sp.name, sp.enabled, sp.requires_hmdmc,
	       m.id, m.name, m.enabled,
	       f.id, f.name, f.enabled,
	       cc.id, cc.name, cc.enabled, cc.requires_hmdmc,
	       h.id, h.hmdmc, h.enabled
	FROM tissues t
	JOIN spatial_locations sl ON sl.id = t.spatial_location_id
	JOIN tissue_types tt ON tt.id = sl.tissue_type_id
	JOIN donors d ON d.id = t.donor_id
	JOIN species sp ON sp.id = d.species_id
	JOIN media m ON m.id = t.medium_id
	JOIN fixatives f ON f.id = t.fixative_id
	JOIN cell_classes cc ON cc.id = t.cell_class_id
	LEFT JOIN hmdmcs h ON h.id = t.hmdmc_id`

func scanTissue(row pgx.Row) (*domain.Tissue, error) {
	var (
		tissue     domain.Tissue
		location   domain.SpatialLocation
		tissueType domain.TissueType
		donor      domain.Donor
		species    domain.Species
		medium     domain.Medium
		fixative   domain.Fixative
		cellClass  domain.CellClass
		lifeStage  string
		hmdmcID    *int
		hmdmcCode  *string
		hmdmcOn    *bool
		collected  *time.Time
	)

	err := row.Scan(
		&tissue.ID, &tissue.ExternalName, &tissue.Replicate, &collected,
		&location.ID, &location.TissueTypeID, &location.Code, &location.Name, &location.Enabled,
		&tissueType.ID, &tissueType.Name, &tissueType.Enabled,
		&donor.ID, &donor.DonorName, &lifeStage,
		&species.ID, &species.Name, &species.Enabled, &species.RequiresHmdmc,
		&medium.ID, &medium.Name, &medium.Enabled,
		&fixative.ID, &fixative.Name, &fixative.Enabled,
		&cellClass.ID, &cellClass.Name, &cellClass.Enabled, &cellClass.RequiresHmdmc,
		&hmdmcID, &hmdmcCode, &hmdmcOn,
	)
	if err != nil {
		return nil, err
	}

	donor.LifeStage = domain.LifeStage(lifeStage)
	donor.Species = &species
	tissue.SpatialLocation = &location
	tissue.TissueType = &tissueType
	tissue.Donor = &donor
	tissue.Medium = &medium
	tissue.Fixative = &fixative
	tissue.CellClass = &cellClass
	tissue.CollectionDate = collected
	if hmdmcID != nil {
		tissue.Hmdmc = &domain.Hmdmc{ID: *hmdmcID, Hmdmc: *hmdmcCode, Enabled: *hmdmcOn}
	}
	return &tissue, nil
}

// FindByExternalName retrieves a tissue by external name,
// case-insensitively. Absence is a nil tissue with a nil error.
func (r *TissueRepository) FindByExternalName(ctx context.Context, name string) (*domain.Tissue, error) {
	query := tissueSelect + `
	WHERE lower(t.external_name) = lower($1)`

	tissue, err := scanTissue(r.db.QueryRow(ctx, query, strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding tissue %q: %w", name, err)
	}
	return tissue, nil
}

// FindByExternalNames bulk-retrieves tissues by external name,
// case-insensitively. Absent names are simply not in the result.
func (r *TissueRepository) FindByExternalNames(ctx context.Context, names []string) ([]*domain.Tissue, error) {
	if len(names) == 0 {
		return nil, nil
	}

	lower := make([]string, len(names))
	for i, name := range names {
		lower[i] = strings.ToLower(strings.TrimSpace(name))
	}

	query := tissueSelect + `
	WHERE lower(t.external_name) = ANY($1)
	ORDER BY t.id`

	rows, err := r.db.Query(ctx, query, lower)
	if err != nil {
		return nil, fmt.Errorf("finding tissues by external names: %w", err)
	}
	defer rows.Close()

	var tissues []*domain.Tissue
	for rows.Next() {
		tissue, err := scanTissue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tissue row: %w", err)
		}
		tissues = append(tissues, tissue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tissue rows: %w", err)
	}
	return tissues, nil
}

// Create inserts a new tissue and fills in its assigned ID. The unique
// index on lower(external_name) is the final backstop against a racing
// registration of the same name.
func (r *TissueRepository) Create(ctx context.Context, tissue *domain.Tissue) error {
	query := `
		INSERT INTO tissues (external_name, replicate, spatial_location_id, donor_id,
		                     medium_id, fixative_id, hmdmc_id, cell_class_id, collection_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var hmdmcID *int
	if tissue.Hmdmc != nil {
		hmdmcID = &tissue.Hmdmc.ID
	}

	err := r.db.QueryRow(ctx, query,
		tissue.ExternalName,
		tissue.Replicate,
		tissue.SpatialLocation.ID,
		tissue.Donor.ID,
		tissue.Medium.ID,
		tissue.Fixative.ID,
		hmdmcID,
		tissue.CellClass.ID,
		tissue.CollectionDate,
	).Scan(&tissue.ID)
	if err != nil {
		return fmt.Errorf("creating tissue %q: %w", tissue.ExternalName, err)
	}

	r.log.WithFields(logrus.Fields{
		"tissue_id":     tissue.ID,
		"external_name": tissue.ExternalName,
		"donor":         tissue.Donor.DonorName,
	}).Info("Tissue created")

	return nil
}

// UpdateCollectionDate backfills a previously-absent collection date.
// The WHERE clause refuses to overwrite an existing date; this is the
// only mutation a persisted tissue ever receives.
func (r *TissueRepository) UpdateCollectionDate(ctx context.Context, tissueID int, date time.Time) error {
	query := `
		UPDATE tissues
		SET collection_date = $2
		WHERE id = $1 AND collection_date IS NULL`

	tag, err := r.db.Exec(ctx, query, tissueID, date)
	if err != nil {
		return fmt.Errorf("updating collection date for tissue %d: %w", tissueID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tissue %d already has a collection date: %w", tissueID, domain.ErrPrecondition)
	}

	r.log.WithFields(logrus.Fields{
		"tissue_id":       tissueID,
		"collection_date": date.Format("2006-01-02"),
	}).Info("Tissue collection date backfilled")

	return nil
}
