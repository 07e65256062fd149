package domain

import (
	"context"
	"time"
)

// ReferenceData provides read-only lookups of named reference entities.
// Lookups are case-insensitive on names and report absence as a nil
// entity with a nil error; errors are reserved for store failures.
type ReferenceData interface {
	FindSpecies(ctx context.Context, name string) (*Species, error)
	FindHmdmc(ctx context.Context, code string) (*Hmdmc, error)
	FindTissueType(ctx context.Context, name string) (*TissueType, error)
	FindLabwareType(ctx context.Context, name string) (*LabwareType, error)
	FindMedium(ctx context.Context, name string) (*Medium, error)
	FindFixative(ctx context.Context, name string) (*Fixative, error)
	FindCellClass(ctx context.Context, name string) (*CellClass, error)
	FindBioRisks(ctx context.Context, codes []string) (map[string]*BioRisk, error)
	FindBioState(ctx context.Context, name string) (*BioState, error)
}

// DonorStore persists donors.
type DonorStore interface {
	FindByName(ctx context.Context, name string) (*Donor, error)
	Create(ctx context.Context, donor *Donor) error
}

// TissueStore persists tissues.
type TissueStore interface {
	FindByExternalName(ctx context.Context, name string) (*Tissue, error)
	FindByExternalNames(ctx context.Context, names []string) ([]*Tissue, error)
	Create(ctx context.Context, tissue *Tissue) error
	// UpdateCollectionDate backfills a previously-absent collection date.
	// This is the only mutation ever applied to a persisted tissue.
	UpdateCollectionDate(ctx context.Context, tissueID int, date time.Time) error
}

// LabwareStore persists labware and its slots.
type LabwareStore interface {
	Create(ctx context.Context, labwareType *LabwareType, externalBarcode string) (*Labware, error)
	FindByBarcode(ctx context.Context, barcode string) (*Labware, error)
	BarcodeExists(ctx context.Context, barcode string) (bool, error)
	ExternalBarcodeExists(ctx context.Context, externalBarcode string) (bool, error)
	// ContainingTissues finds, per tissue ID, every labware holding a
	// sample of that tissue placed by a Register operation.
	ContainingTissues(ctx context.Context, tissueIDs []int) (map[int][]Labware, error)
	PlaceSample(ctx context.Context, slotID, sampleID int) error
}

// SampleStore persists samples.
type SampleStore interface {
	Create(ctx context.Context, sample *Sample) error
}

// SampleBioRisk links a sample to a bio risk via the operation that
// registered it.
type SampleBioRisk struct {
	SampleID    int
	BioRiskID   int
	OperationID int
}

// OperationStore persists audit operations and their associations.
type OperationStore interface {
	Create(ctx context.Context, opType, username string, actions []Action) (*Operation, error)
	LinkBioRisks(ctx context.Context, links []SampleBioRisk) error
}

// WorkStore resolves and links works.
type WorkStore interface {
	FindByWorkNumbers(ctx context.Context, workNumbers []string) ([]*Work, error)
	// LinkOperations attaches every operation to every work in one batch.
	LinkOperations(ctx context.Context, workIDs, operationIDs []int) error
}

// Store aggregates the persistence interfaces the registration pipeline
// consumes. Transact runs fn against a store bound to one transaction;
// an error from fn rolls the whole transaction back.
type Store interface {
	RefData() ReferenceData
	Donors() DonorStore
	Tissues() TissueStore
	Labware() LabwareStore
	Samples() SampleStore
	Operations() OperationStore
	Works() WorkStore
	Transact(ctx context.Context, fn func(Store) error) error
}
