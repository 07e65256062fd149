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

// LabwareRepository handles labware and slot persistence.
type LabwareRepository struct {
	db  DBTX
	log *logrus.Logger
}

// NewLabwareRepository creates a new labware repository.
func NewLabwareRepository(db DBTX, logger *logrus.Logger) *LabwareRepository {
	return &LabwareRepository{
		db:  db,
		log: logger,
	}
}

// Create mints a system barcode, inserts the labware and one slot per
// address of its type's layout, and returns the populated labware.
func (r *LabwareRepository) Create(ctx context.Context, labwareType *domain.LabwareType, externalBarcode string) (*domain.Labware, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('barcode_seq')`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("assigning barcode: %w", err)
	}
	barcode := fmt.Sprintf("%s%08d", domain.BarcodePrefix, seq)

	labware := &domain.Labware{
		Barcode:         barcode,
		ExternalBarcode: strings.TrimSpace(externalBarcode),
		LabwareType:     labwareType,
	}

	var external *string
	if labware.ExternalBarcode != "" {
		external = &labware.ExternalBarcode
	}

	query := `
		INSERT INTO labware (barcode, external_barcode, labware_type_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, barcode, external, labwareType.ID).
		Scan(&labware.ID, &labware.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating labware %q: %w", barcode, err)
	}

	slotQuery := `
		INSERT INTO slots (labware_id, row_index, col_index)
		SELECT $1, r, c
		FROM generate_series(1, $2) r, generate_series(1, $3) c
		RETURNING id, row_index, col_index`

	rows, err := r.db.Query(ctx, slotQuery, labware.ID, labwareType.NumRows, labwareType.NumColumns)
	if err != nil {
		return nil, fmt.Errorf("creating slots for labware %q: %w", barcode, err)
	}
	defer rows.Close()

	for rows.Next() {
		slot := domain.Slot{LabwareID: labware.ID}
		var row, col int
		if err := rows.Scan(&slot.ID, &row, &col); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		slot.Address = domain.NewAddress(row, col)
		labware.Slots = append(labware.Slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slots: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"labware_id":   labware.ID,
		"barcode":      barcode,
		"labware_type": labwareType.Name,
		"slots":        len(labware.Slots),
	}).Info("Labware created")

	return labware, nil
}

// FindByBarcode retrieves labware with its slots and placed samples.
// Absence is a nil labware with a nil error.
func (r *LabwareRepository) FindByBarcode(ctx context.Context, barcode string) (*domain.Labware, error) {
	query := `
		SELECT lw.id, lw.barcode, lw.external_barcode, lw.created_at,
		       lt.id, lt.name, lt.num_rows, lt.num_columns
		FROM labware lw
		JOIN labware_types lt ON lt.id = lw.labware_type_id
		WHERE lower(lw.barcode) = lower($1)`

	var labware domain.Labware
	var labwareType domain.LabwareType
	var external *string
	err := r.db.QueryRow(ctx, query, strings.TrimSpace(barcode)).Scan(
		&labware.ID,
		&labware.Barcode,
		&external,
		&labware.CreatedAt,
		&labwareType.ID,
		&labwareType.Name,
		&labwareType.NumRows,
		&labwareType.NumColumns,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding labware %q: %w", barcode, err)
	}
	labware.LabwareType = &labwareType
	if external != nil {
		labware.ExternalBarcode = *external
	}

	slotQuery := `
		SELECT sl.id, sl.row_index, sl.col_index,
		       s.id, s.tissue_id, s.section,
		       bs.id, bs.name,
		       t.external_name
		FROM slots sl
		LEFT JOIN slot_samples ss ON ss.slot_id = sl.id
		LEFT JOIN samples s ON s.id = ss.sample_id
		LEFT JOIN bio_states bs ON bs.id = s.bio_state_id
		LEFT JOIN tissues t ON t.id = s.tissue_id
		WHERE sl.labware_id = $1
		ORDER BY sl.row_index, sl.col_index, s.id`

	rows, err := r.db.Query(ctx, slotQuery, labware.ID)
	if err != nil {
		return nil, fmt.Errorf("finding slots for labware %q: %w", barcode, err)
	}
	defer rows.Close()

	slotIndex := make(map[int]int)
	for rows.Next() {
		var (
			slotID, row, col                  int
			sampleID, tissueID, section       *int
			bioStateID                        *int
			bioStateName, tissueExternalName  *string
		)
		if err := rows.Scan(&slotID, &row, &col, &sampleID, &tissueID, &section,
			&bioStateID, &bioStateName, &tissueExternalName); err != nil {
			return nil, fmt.Errorf("scanning slot row: %w", err)
		}

		idx, ok := slotIndex[slotID]
		if !ok {
			labware.Slots = append(labware.Slots, domain.Slot{
				ID:        slotID,
				LabwareID: labware.ID,
				Address:   domain.NewAddress(row, col),
			})
			idx = len(labware.Slots) - 1
			slotIndex[slotID] = idx
		}
		if sampleID != nil {
			sample := domain.Sample{
				ID:      *sampleID,
				Section: section,
			}
			if tissueID != nil {
				sample.Tissue = &domain.Tissue{ID: *tissueID}
				if tissueExternalName != nil {
					sample.Tissue.ExternalName = *tissueExternalName
				}
			}
			if bioStateID != nil {
				sample.BioState = &domain.BioState{ID: *bioStateID, Name: *bioStateName}
			}
			labware.Slots[idx].Samples = append(labware.Slots[idx].Samples, sample)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slot rows: %w", err)
	}

	return &labware, nil
}

// BarcodeExists reports whether a system barcode is taken.
func (r *LabwareRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM labware WHERE lower(barcode) = lower($1))`,
		strings.TrimSpace(barcode)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking barcode %q: %w", barcode, err)
	}
	return exists, nil
}

// ExternalBarcodeExists reports whether an external barcode is taken.
func (r *LabwareRepository) ExternalBarcodeExists(ctx context.Context, externalBarcode string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM labware WHERE lower(external_barcode) = lower($1))`,
		strings.TrimSpace(externalBarcode)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking external barcode %q: %w", externalBarcode, err)
	}
	return exists, nil
}

// ContainingTissues finds, per tissue ID, the distinct labware that
// holds a sample of that tissue placed by a Register operation, traced
// through the operations' actions back to destination slots.
func (r *LabwareRepository) ContainingTissues(ctx context.Context, tissueIDs []int) (map[int][]domain.Labware, error) {
	if len(tissueIDs) == 0 {
		return map[int][]domain.Labware{}, nil
	}

	query := `
		SELECT DISTINCT s.tissue_id,
		       lw.id, lw.barcode, lw.external_barcode, lw.created_at,
		       lt.id, lt.name, lt.num_rows, lt.num_columns
		FROM samples s
		JOIN actions a ON a.sample_id = s.id
		JOIN operations op ON op.id = a.operation_id AND op.operation_type = $2
		JOIN slots sl ON sl.id = a.dest_slot_id
		JOIN labware lw ON lw.id = sl.labware_id
		JOIN labware_types lt ON lt.id = lw.labware_type_id
		WHERE s.tissue_id = ANY($1)
		ORDER BY s.tissue_id, lw.id`

	rows, err := r.db.Query(ctx, query, tissueIDs, domain.OperationTypeRegister)
	if err != nil {
		return nil, fmt.Errorf("finding labware containing tissues: %w", err)
	}
	defer rows.Close()

	result := make(map[int][]domain.Labware)
	for rows.Next() {
		var tissueID int
		var labware domain.Labware
		var labwareType domain.LabwareType
		var external *string
		if err := rows.Scan(
			&tissueID,
			&labware.ID, &labware.Barcode, &external, &labware.CreatedAt,
			&labwareType.ID, &labwareType.Name, &labwareType.NumRows, &labwareType.NumColumns,
		); err != nil {
			return nil, fmt.Errorf("scanning labware row: %w", err)
		}
		labware.LabwareType = &labwareType
		if external != nil {
			labware.ExternalBarcode = *external
		}
		result[tissueID] = append(result[tissueID], labware)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating labware rows: %w", err)
	}
	return result, nil
}

// PlaceSample puts a sample into a slot.
func (r *LabwareRepository) PlaceSample(ctx context.Context, slotID, sampleID int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO slot_samples (slot_id, sample_id) VALUES ($1, $2)`,
		slotID, sampleID)
	if err != nil {
		return fmt.Errorf("placing sample %d in slot %d: %w", sampleID, slotID, err)
	}
	return nil
}
