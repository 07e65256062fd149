package domain

// Wire Models
//
// The three registration flavors share one wire shape for labware and
// specimen entries; the flavor determines which optional fields are
// meaningful. Each flavor's Normalize adapter produces the common
// RegistrationRequest that the validator and orchestrator consume, so
// flavor-specific behavior lives in the adapters and in explicitly
// optional validation stages, not in type switches downstream.

// SpecimenInput is the wire form of one specimen entry.
type SpecimenInput struct {
	DonorIdentifier    string   `json:"donor_identifier"`
	LifeStage          string   `json:"life_stage"`
	Species            string   `json:"species"`
	Hmdmc              string   `json:"hmdmc,omitempty"`
	TissueType         string   `json:"tissue_type"`
	SpatialLocation    int      `json:"spatial_location"`
	Replicate          string   `json:"replicate"`
	ExternalIdentifier string   `json:"external_identifier"`
	Medium             string   `json:"medium"`
	Fixative           string   `json:"fixative"`
	CellClass          string   `json:"cell_class"`
	BioRiskCode        string   `json:"bio_risk_code"`
	CollectionDate     string   `json:"collection_date,omitempty"`
	Addresses          []string `json:"addresses,omitempty"`
	SectionNumber      *int     `json:"section_number,omitempty"`
	ExistingTissue     bool     `json:"existing_tissue,omitempty"`
}

// LabwareInput is the wire form of one labware item and its contents.
type LabwareInput struct {
	LabwareType     string          `json:"labware_type"`
	ExternalBarcode string          `json:"external_barcode,omitempty"`
	Contents        []SpecimenInput `json:"contents"`
}

// BlockRegisterRequest registers tissue blocks, optionally re-registering
// tissue that already exists in the store.
type BlockRegisterRequest struct {
	Labware     []LabwareInput `json:"labware"`
	WorkNumbers []string       `json:"work_numbers"`
}

// OriginalSampleRegisterRequest registers original (unprocessed) samples.
type OriginalSampleRegisterRequest struct {
	Labware     []LabwareInput `json:"labware"`
	WorkNumbers []string       `json:"work_numbers"`
}

// SectionRegisterRequest registers already-sectioned tissue into slides.
type SectionRegisterRequest struct {
	Labware     []LabwareInput `json:"labware"`
	WorkNumbers []string       `json:"work_numbers"`
}

// Normalized Intermediate Representation

// SpecimenEntry is one normalized specimen entry. Field values are kept
// as supplied; parsing and resolution are the validator's job so that
// every defect ends up in the problem list instead of an early error.
type SpecimenEntry struct {
	DonorName           string
	LifeStage           string
	SpeciesName         string
	HmdmcCode           string
	TissueTypeName      string
	SpatialLocationCode int
	Replicate           string
	ExternalName        string
	MediumName          string
	FixativeName        string
	CellClassName       string
	BioRiskCode         string
	CollectionDate      string
	Addresses           []string
	SectionNumber       *int
	ExistingTissue      bool
}

// LabwareItem is one normalized labware item.
type LabwareItem struct {
	LabwareTypeName string
	ExternalBarcode string
	Entries         []SpecimenEntry
}

// RegistrationRequest is the flavor-normalized request the clash checker,
// validator and orchestrator operate on.
type RegistrationRequest struct {
	Kind        RegistrationKind
	Labware     []LabwareItem
	WorkNumbers []string
}

// Empty reports whether the request contains no labware items.
func (r *RegistrationRequest) Empty() bool {
	return r == nil || len(r.Labware) == 0
}

// Entries returns pointers to every specimen entry across all labware,
// in request order.
func (r *RegistrationRequest) Entries() []*SpecimenEntry {
	var entries []*SpecimenEntry
	for i := range r.Labware {
		for j := range r.Labware[i].Entries {
			entries = append(entries, &r.Labware[i].Entries[j])
		}
	}
	return entries
}

// Flavor Adapters

// Normalize converts a block registration into the common representation.
// Blocks keep their existing-tissue flags; entries without addresses
// occupy the first slot.
func (r *BlockRegisterRequest) Normalize() *RegistrationRequest {
	return normalize(BlockRegistration, r.Labware, r.WorkNumbers, func(e *SpecimenEntry) {
		e.SectionNumber = nil
		if len(e.Addresses) == 0 {
			e.Addresses = []string{"A1"}
		}
	})
}

// Normalize converts an original-sample registration into the common
// representation. Original samples are always new tissue.
func (r *OriginalSampleRegisterRequest) Normalize() *RegistrationRequest {
	return normalize(OriginalSampleRegistration, r.Labware, r.WorkNumbers, func(e *SpecimenEntry) {
		e.SectionNumber = nil
		e.ExistingTissue = false
		if len(e.Addresses) == 0 {
			e.Addresses = []string{"A1"}
		}
	})
}

// Normalize converts a section registration into the common
// representation. Sections are always new tissue and keep their section
// numbers and explicit addresses.
func (r *SectionRegisterRequest) Normalize() *RegistrationRequest {
	return normalize(SectionRegistration, r.Labware, r.WorkNumbers, func(e *SpecimenEntry) {
		e.ExistingTissue = false
	})
}

func normalize(kind RegistrationKind, labware []LabwareInput, workNumbers []string, fixup func(*SpecimenEntry)) *RegistrationRequest {
	req := &RegistrationRequest{
		Kind:        kind,
		WorkNumbers: workNumbers,
	}
	for _, lw := range labware {
		item := LabwareItem{
			LabwareTypeName: lw.LabwareType,
			ExternalBarcode: lw.ExternalBarcode,
		}
		for _, in := range lw.Contents {
			entry := SpecimenEntry{
				DonorName:           in.DonorIdentifier,
				LifeStage:           in.LifeStage,
				SpeciesName:         in.Species,
				HmdmcCode:           in.Hmdmc,
				TissueTypeName:      in.TissueType,
				SpatialLocationCode: in.SpatialLocation,
				Replicate:           in.Replicate,
				ExternalName:        in.ExternalIdentifier,
				MediumName:          in.Medium,
				FixativeName:        in.Fixative,
				CellClassName:       in.CellClass,
				BioRiskCode:         in.BioRiskCode,
				CollectionDate:      in.CollectionDate,
				Addresses:           append([]string(nil), in.Addresses...),
				SectionNumber:       in.SectionNumber,
				ExistingTissue:      in.ExistingTissue,
			}
			fixup(&entry)
			item.Entries = append(item.Entries, entry)
		}
		req.Labware = append(req.Labware, item)
	}
	return req
}
