package domain

import (
	"time"
)

// Core Enums and Types

// LifeStage represents the developmental stage of a donor
type LifeStage string

const (
	ADULT      LifeStage = "adult"
	PAEDIATRIC LifeStage = "paediatric"
	FETAL      LifeStage = "fetal"
)

// Valid reports whether the life stage is one of the known values.
func (ls LifeStage) Valid() bool {
	switch ls {
	case ADULT, PAEDIATRIC, FETAL:
		return true
	}
	return false
}

// String returns the life stage as a string
func (ls LifeStage) String() string {
	return string(ls)
}

// RegistrationKind represents the flavor of a registration request
type RegistrationKind string

const (
	BlockRegistration          RegistrationKind = "BLOCK"
	OriginalSampleRegistration RegistrationKind = "ORIGINAL_SAMPLE"
	SectionRegistration        RegistrationKind = "SECTION"
)

// Bio-state names used when creating samples for each registration flavor.
const (
	BioStateTissue         = "Tissue"
	BioStateOriginalSample = "Original sample"
)

// OperationTypeRegister is the operation type recorded for every
// successful registration.
const OperationTypeRegister = "Register"

// BarcodePrefix prefixes every system-assigned labware barcode. The
// prefix is reserved: external barcodes may not use it.
const BarcodePrefix = "REG-"

// Reference Data Models

// Species represents a donor species
type Species struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	RequiresHmdmc bool   `json:"requires_hmdmc"`
}

// Hmdmc represents a human-tissue ethics reference number
type Hmdmc struct {
	ID      int    `json:"id"`
	Hmdmc   string `json:"hmdmc"`
	Enabled bool   `json:"enabled"`
}

// TissueType represents a controlled-vocabulary anatomical classification
type TissueType struct {
	ID               int               `json:"id"`
	Name             string            `json:"name"`
	Enabled          bool              `json:"enabled"`
	SpatialLocations []SpatialLocation `json:"spatial_locations,omitempty"`
}

// SpatialLocation represents a coded sub-region within a tissue type
type SpatialLocation struct {
	ID           int    `json:"id"`
	TissueTypeID int    `json:"tissue_type_id"`
	Code         int    `json:"code"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
}

// Medium represents a preservation medium
type Medium struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Fixative represents a tissue fixative
type Fixative struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// CellClass represents a cell classification applied to tissue
type CellClass struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Enabled       bool   `json:"enabled"`
	RequiresHmdmc bool   `json:"requires_hmdmc"`
}

// BioRisk represents a biosafety classification code
type BioRisk struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

// BioState represents the biological state of a sample
type BioState struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// WorkStatus represents the lifecycle status of a work
type WorkStatus string

const (
	WorkActive    WorkStatus = "active"
	WorkPaused    WorkStatus = "paused"
	WorkCompleted WorkStatus = "completed"
	WorkFailed    WorkStatus = "failed"
)

// Work represents a funding/tracking code that operations can be linked to
type Work struct {
	ID         int        `json:"id"`
	WorkNumber string     `json:"work_number"`
	Status     WorkStatus `json:"status"`
}

// Usable reports whether operations may currently be linked to the work.
func (w *Work) Usable() bool {
	return w.Status == WorkActive
}

// LabwareType represents a kind of physical container and its slot layout
type LabwareType struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	NumRows    int    `json:"num_rows"`
	NumColumns int    `json:"num_columns"`
}

// HasAddress reports whether the given address fits inside the layout.
func (lt *LabwareType) HasAddress(addr Address) bool {
	return addr.Row >= 1 && addr.Row <= lt.NumRows && addr.Column >= 1 && addr.Column <= lt.NumColumns
}

// Core Entity Models

// Donor represents the source organism of registered tissue
type Donor struct {
	ID        int       `json:"id"`
	DonorName string    `json:"donor_name"`
	LifeStage LifeStage `json:"life_stage"`
	Species   *Species  `json:"species"`
}

// Persisted reports whether the donor has a store identity.
func (d *Donor) Persisted() bool {
	return d != nil && d.ID != 0
}

// Tissue represents a uniquely-named piece of donor material
type Tissue struct {
	ID              int              `json:"id"`
	ExternalName    string           `json:"external_name"`
	Replicate       string           `json:"replicate"`
	SpatialLocation *SpatialLocation `json:"spatial_location"`
	TissueType      *TissueType      `json:"tissue_type"`
	Donor           *Donor           `json:"donor"`
	Medium          *Medium          `json:"medium"`
	Fixative        *Fixative        `json:"fixative"`
	Hmdmc           *Hmdmc           `json:"hmdmc,omitempty"`
	CellClass       *CellClass       `json:"cell_class"`
	CollectionDate  *time.Time       `json:"collection_date,omitempty"`
}

// Persisted reports whether the tissue has a store identity. The validator
// synthesizes unpersisted tissues for new external names; the orchestrator
// tells the two cases apart with this.
func (t *Tissue) Persisted() bool {
	return t != nil && t.ID != 0
}

// Sample represents one placed unit of a tissue
type Sample struct {
	ID       int       `json:"id"`
	Tissue   *Tissue   `json:"tissue"`
	BioState *BioState `json:"bio_state"`
	Section  *int      `json:"section,omitempty"`
}

// Slot represents an addressable position within labware
type Slot struct {
	ID        int      `json:"id"`
	LabwareID int      `json:"labware_id"`
	Address   Address  `json:"address"`
	Samples   []Sample `json:"samples,omitempty"`
}

// Labware represents a physical container with addressable slots
type Labware struct {
	ID              int          `json:"id"`
	Barcode         string       `json:"barcode"`
	ExternalBarcode string       `json:"external_barcode,omitempty"`
	LabwareType     *LabwareType `json:"labware_type"`
	Slots           []Slot       `json:"slots,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Slot returns the slot at the given address, or nil if the labware has none.
func (lw *Labware) Slot(addr Address) *Slot {
	for i := range lw.Slots {
		if lw.Slots[i].Address == addr {
			return &lw.Slots[i]
		}
	}
	return nil
}

// Action represents one sample placement recorded under an operation
type Action struct {
	ID         int `json:"id"`
	SourceSlot int `json:"source_slot_id"`
	DestSlot   int `json:"dest_slot_id"`
	SampleID   int `json:"sample_id"`
}

// Operation represents an append-only audit record of one registration act
type Operation struct {
	ID            int       `json:"id"`
	OperationType string    `json:"operation_type"`
	Username      string    `json:"username"`
	PerformedAt   time.Time `json:"performed_at"`
	Actions       []Action  `json:"actions"`
}

// Clash represents a requested-as-new external name that already exists,
// together with every labware currently holding the existing tissue.
type Clash struct {
	Tissue  *Tissue   `json:"tissue"`
	Labware []Labware `json:"labware"`
}

// RegistrationResult represents the outcome of a successful registration
type RegistrationResult struct {
	Labware    []Labware   `json:"labware"`
	Operations []Operation `json:"operations"`
}
