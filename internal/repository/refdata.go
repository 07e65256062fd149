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

// RefDataRepository provides read-only lookups of named reference
// entities. All name matches are case-insensitive and absence is
// reported as a nil entity with a nil error, never as a failure.
type RefDataRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewRefDataRepository creates a new reference-data repository.
func NewRefDataRepository(db DBTX, logger *logrus.Logger) *RefDataRepository {
	return &RefDataRepository{
		db:  db,
		log: logger,
	}
}

// FindSpecies looks up a species by name.
func (r *RefDataRepository) FindSpecies(ctx context.Context, name string) (*domain.Species, error) {
	query := `
		SELECT id, name, enabled, requires_hmdmc
		FROM species
		WHERE lower(name) = lower($1)`

	var species domain.Species
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&species.ID,
		&species.Name,
		&species.Enabled,
		&species.RequiresHmdmc,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding species %q: %w", name, err)
	}
	return &species, nil
}

// FindHmdmc looks up a HuMFre number by code.
func (r *RefDataRepository) FindHmdmc(ctx context.Context, code string) (*domain.Hmdmc, error) {
	query := `
		SELECT id, hmdmc, enabled
		FROM hmdmcs
		WHERE lower(hmdmc) = lower($1)`

	var hmdmc domain.Hmdmc
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(code)).Scan(
		&hmdmc.ID,
		&hmdmc.Hmdmc,
		&hmdmc.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding hmdmc %q: %w", code, err)
	}
	return &hmdmc, nil
}

// FindTissueType looks up a tissue type by name, with its spatial
// locations.
func (r *RefDataRepository) FindTissueType(ctx context.Context, name string) (*domain.TissueType, error) {
	query := `
		SELECT id, name, enabled
		FROM tissue_types
		WHERE lower(name) = lower($1)`

	var tissueType domain.TissueType
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&tissueType.ID,
		&tissueType.Name,
		&tissueType.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding tissue type %q: %w", name, err)
	}

	locQuery := `
		SELECT id, tissue_type_id, code, name, enabled
		FROM spatial_locations
		WHERE tissue_type_id = $1
		ORDER BY code`

	rows, err := r.db.Query(ctx, locQuery, tissueType.ID)
	if err != nil {
		return nil, fmt.Errorf("finding spatial locations for tissue type %q: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var loc domain.SpatialLocation
		if err := rows.Scan(&loc.ID, &loc.TissueTypeID, &loc.Code, &loc.Name, &loc.Enabled); err != nil {
			return nil, fmt.Errorf("scanning spatial location: %w", err)
		}
		tissueType.SpatialLocations = append(tissueType.SpatialLocations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spatial locations: %w", err)
	}

	return &tissueType, nil
}

// FindLabwareType looks up a labware type by name.
func (r *RefDataRepository) FindLabwareType(ctx context.Context, name string) (*domain.LabwareType, error) {
	query := `
		SELECT id, name, num_rows, num_columns
		FROM labware_types
		WHERE lower(name) = lower($1)`

	var labwareType domain.LabwareType
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&labwareType.ID,
		&labwareType.Name,
		&labwareType.NumRows,
		&labwareType.NumColumns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding labware type %q: %w", name, err)
	}
	return &labwareType, nil
}

// FindMedium looks up a medium by name.
func (r *RefDataRepository) FindMedium(ctx context.Context, name string) (*domain.Medium, error) {
	query := `
		SELECT id, name, enabled
		FROM media
		WHERE lower(name) = lower($1)`

	var medium domain.Medium
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&medium.ID,
		&medium.Name,
		&medium.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding medium %q: %w", name, err)
	}
	return &medium, nil
}

// FindFixative looks up a fixative by name.
func (r *RefDataRepository) FindFixative(ctx context.Context, name string) (*domain.Fixative, error) {
	query := `
		SELECT id, name, enabled
		FROM fixatives
		WHERE lower(name) = lower($1)`

	var fixative domain.Fixative
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&fixative.ID,
		&fixative.Name,
		&fixative.Enabled,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding fixative %q: %w", name, err)
	}
	return &fixative, nil
}

// FindCellClass looks up a cell class by name.
func (r *RefDataRepository) FindCellClass(ctx context.Context, name string) (*domain.CellClass, error) {
	query := `
		SELECT id, name, enabled, requires_hmdmc
		FROM cell_classes
		WHERE lower(name) = lower($1)`

	var cellClass domain.CellClass
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&cellClass.ID,
		&cellClass.Name,
		&cellClass.Enabled,
		&cellClass.RequiresHmdmc,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding cell class %q: %w", name, err)
	}
	return &cellClass, nil
}

// FindBioRisks bulk-looks up bio risks by code. The result is keyed by
// upper-cased code; absent codes simply have no key.
func (r *RefDataRepository) FindBioRisks(ctx context.Context, codes []string) (map[string]*domain.BioRisk, error) {
	if len(codes) == 0 {
		return map[string]*domain.BioRisk{}, nil
	}

	upper := make([]string, len(codes))
	for i, code := range codes {
		upper[i] = strings.ToUpper(strings.TrimSpace(code))
	}

	query := `
		SELECT id, code, enabled
		FROM bio_risks
		WHERE upper(code) = ANY($1)`

	rows, err := r.db.Query(ctx, query, upper)
	if err != nil {
		return nil, fmt.Errorf("finding bio risks: %w", err)
	}
	defer rows.Close()

	found := make(map[string]*domain.BioRisk)
	for rows.Next() {
		var risk domain.BioRisk
		if err := rows.Scan(&risk.ID, &risk.Code, &risk.Enabled); err != nil {
			return nil, fmt.Errorf("scanning bio risk: %w", err)
		}
		found[strings.ToUpper(risk.Code)] = &risk
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bio risks: %w", err)
	}
	return found, nil
}

// FindBioState looks up a bio state by name.
func (r *RefDataRepository) FindBioState(ctx context.Context, name string) (*domain.BioState, error) {
	query := `
		SELECT id, name
		FROM bio_states
		WHERE lower(name) = lower($1)`

	var bioState domain.BioState
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(name)).Scan(
		&bioState.ID,
		&bioState.Name,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding bio state %q: %w", name, err)
	}
	return &bioState, nil
}
