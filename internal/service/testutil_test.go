package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// fakeStore is an in-memory domain.Store. It mimics the persistence
// contract the pipeline relies on: case-insensitive name lookups,
// nil-for-absent reference data, and ID assignment on create. Transact
// simply runs fn against the same store; real rollback behavior is
// covered by the repository integration tests.
type fakeStore struct {
	species      []*domain.Species
	hmdmcs       []*domain.Hmdmc
	tissueTypes  []*domain.TissueType
	labwareTypes []*domain.LabwareType
	media        []*domain.Medium
	fixatives    []*domain.Fixative
	cellClasses  []*domain.CellClass
	bioRisks     []*domain.BioRisk
	bioStates    []*domain.BioState
	works        []*domain.Work

	donors  []*domain.Donor
	tissues []*domain.Tissue
	labware []*domain.Labware
	samples []*domain.Sample

	containing map[int][]domain.Labware

	placements map[int][]int
	operations []*domain.Operation
	riskLinks  []domain.SampleBioRisk
	workLinks  map[[2]int]bool

	createTissueErr error

	nextID int
}

// newFakeStore returns a store preloaded with a small reference set:
// Human requires ethics tracking, Mouse does not, Dodo is disabled;
// tissue type Heart has locations 0 and 1 enabled and 2 disabled.
func newFakeStore() *fakeStore {
	return &fakeStore{
		species: []*domain.Species{
			{ID: 1, Name: "Human", Enabled: true, RequiresHmdmc: true},
			{ID: 2, Name: "Mouse", Enabled: true, RequiresHmdmc: false},
			{ID: 3, Name: "Dodo", Enabled: false, RequiresHmdmc: false},
		},
		hmdmcs: []*domain.Hmdmc{
			{ID: 1, Hmdmc: "20/123", Enabled: true},
			{ID: 2, Hmdmc: "99/000", Enabled: false},
		},
		tissueTypes: []*domain.TissueType{
			{ID: 1, Name: "Heart", Enabled: true, SpatialLocations: []domain.SpatialLocation{
				{ID: 1, TissueTypeID: 1, Code: 0, Name: "Unknown", Enabled: true},
				{ID: 2, TissueTypeID: 1, Code: 1, Name: "Left ventricle", Enabled: true},
				{ID: 3, TissueTypeID: 1, Code: 2, Name: "Right ventricle", Enabled: false},
			}},
			{ID: 2, Name: "Kidney", Enabled: true, SpatialLocations: []domain.SpatialLocation{
				{ID: 4, TissueTypeID: 2, Code: 0, Name: "Unknown", Enabled: true},
			}},
		},
		labwareTypes: []*domain.LabwareType{
			{ID: 1, Name: "Proviasette", NumRows: 1, NumColumns: 1},
			{ID: 2, Name: "Slide", NumRows: 2, NumColumns: 3},
		},
		media: []*domain.Medium{
			{ID: 1, Name: "OCT", Enabled: true},
			{ID: 2, Name: "None", Enabled: true},
			{ID: 3, Name: "Wax", Enabled: false},
		},
		fixatives: []*domain.Fixative{
			{ID: 1, Name: "Formalin", Enabled: true},
			{ID: 2, Name: "None", Enabled: true},
		},
		cellClasses: []*domain.CellClass{
			{ID: 1, Name: "Tissue", Enabled: true, RequiresHmdmc: true},
			{ID: 2, Name: "Cell line", Enabled: true, RequiresHmdmc: false},
			{ID: 3, Name: "Retired", Enabled: false, RequiresHmdmc: true},
		},
		bioRisks: []*domain.BioRisk{
			{ID: 1, Code: "ABC", Enabled: true},
			{ID: 2, Code: "XYZ", Enabled: false},
		},
		bioStates: []*domain.BioState{
			{ID: 1, Name: domain.BioStateTissue},
			{ID: 2, Name: domain.BioStateOriginalSample},
		},
		works: []*domain.Work{
			{ID: 1, WorkNumber: "SGP1", Status: domain.WorkActive},
			{ID: 2, WorkNumber: "SGP2", Status: domain.WorkCompleted},
		},
		containing: make(map[int][]domain.Labware),
		placements: make(map[int][]int),
		workLinks:  make(map[[2]int]bool),
		nextID:     100,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func (f *fakeStore) id() int {
	f.nextID++
	return f.nextID
}

func nameEq(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (f *fakeStore) RefData() domain.ReferenceData     { return (*fakeRefData)(f) }
func (f *fakeStore) Donors() domain.DonorStore         { return &fakeDonors{f} }
func (f *fakeStore) Tissues() domain.TissueStore       { return &fakeTissues{f} }
func (f *fakeStore) Labware() domain.LabwareStore      { return &fakeLabware{f} }
func (f *fakeStore) Samples() domain.SampleStore       { return &fakeSamples{f} }
func (f *fakeStore) Operations() domain.OperationStore { return &fakeOperations{f} }
func (f *fakeStore) Works() domain.WorkStore           { return &fakeWorks{f} }

func (f *fakeStore) Transact(ctx context.Context, fn func(domain.Store) error) error {
	return fn(f)
}

// Reference data

type fakeRefData fakeStore

func (f *fakeRefData) FindSpecies(ctx context.Context, name string) (*domain.Species, error) {
	for _, s := range f.species {
		if nameEq(s.Name, name) {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindHmdmc(ctx context.Context, code string) (*domain.Hmdmc, error) {
	for _, h := range f.hmdmcs {
		if nameEq(h.Hmdmc, code) {
			return h, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindTissueType(ctx context.Context, name string) (*domain.TissueType, error) {
	for _, tt := range f.tissueTypes {
		if nameEq(tt.Name, name) {
			return tt, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindLabwareType(ctx context.Context, name string) (*domain.LabwareType, error) {
	for _, lt := range f.labwareTypes {
		if nameEq(lt.Name, name) {
			return lt, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindMedium(ctx context.Context, name string) (*domain.Medium, error) {
	for _, m := range f.media {
		if nameEq(m.Name, name) {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindFixative(ctx context.Context, name string) (*domain.Fixative, error) {
	for _, fx := range f.fixatives {
		if nameEq(fx.Name, name) {
			return fx, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindCellClass(ctx context.Context, name string) (*domain.CellClass, error) {
	for _, cc := range f.cellClasses {
		if nameEq(cc.Name, name) {
			return cc, nil
		}
	}
	return nil, nil
}

func (f *fakeRefData) FindBioRisks(ctx context.Context, codes []string) (map[string]*domain.BioRisk, error) {
	found := make(map[string]*domain.BioRisk)
	for _, code := range codes {
		for _, br := range f.bioRisks {
			if nameEq(br.Code, code) {
				found[strings.ToUpper(strings.TrimSpace(code))] = br
			}
		}
	}
	return found, nil
}

func (f *fakeRefData) FindBioState(ctx context.Context, name string) (*domain.BioState, error) {
	for _, bs := range f.bioStates {
		if nameEq(bs.Name, name) {
			return bs, nil
		}
	}
	return nil, nil
}

// Donors

type fakeDonors struct{ f *fakeStore }

func (d *fakeDonors) FindByName(ctx context.Context, name string) (*domain.Donor, error) {
	for _, donor := range d.f.donors {
		if nameEq(donor.DonorName, name) {
			return donor, nil
		}
	}
	return nil, nil
}

func (d *fakeDonors) Create(ctx context.Context, donor *domain.Donor) error {
	donor.ID = d.f.id()
	d.f.donors = append(d.f.donors, donor)
	return nil
}

// Tissues

type fakeTissues struct{ f *fakeStore }

func (t *fakeTissues) FindByExternalName(ctx context.Context, name string) (*domain.Tissue, error) {
	for _, tissue := range t.f.tissues {
		if nameEq(tissue.ExternalName, name) {
			return tissue, nil
		}
	}
	return nil, nil
}

func (t *fakeTissues) FindByExternalNames(ctx context.Context, names []string) ([]*domain.Tissue, error) {
	var found []*domain.Tissue
	for _, tissue := range t.f.tissues {
		for _, name := range names {
			if nameEq(tissue.ExternalName, name) {
				found = append(found, tissue)
				break
			}
		}
	}
	return found, nil
}

func (t *fakeTissues) Create(ctx context.Context, tissue *domain.Tissue) error {
	if t.f.createTissueErr != nil {
		return t.f.createTissueErr
	}
	tissue.ID = t.f.id()
	t.f.tissues = append(t.f.tissues, tissue)
	return nil
}

func (t *fakeTissues) UpdateCollectionDate(ctx context.Context, tissueID int, date time.Time) error {
	for _, tissue := range t.f.tissues {
		if tissue.ID == tissueID {
			if tissue.CollectionDate != nil {
				return fmt.Errorf("tissue %d already has a collection date: %w", tissueID, domain.ErrPrecondition)
			}
			d := date
			tissue.CollectionDate = &d
			return nil
		}
	}
	return fmt.Errorf("tissue %d: %w", tissueID, domain.ErrNotFound)
}

// Labware

type fakeLabware struct{ f *fakeStore }

func (l *fakeLabware) Create(ctx context.Context, labwareType *domain.LabwareType, externalBarcode string) (*domain.Labware, error) {
	labware := &domain.Labware{
		ID:              l.f.id(),
		Barcode:         fmt.Sprintf("%s%08d", domain.BarcodePrefix, l.f.nextID),
		ExternalBarcode: strings.TrimSpace(externalBarcode),
		LabwareType:     labwareType,
		CreatedAt:       time.Now(),
	}
	for row := 1; row <= labwareType.NumRows; row++ {
		for col := 1; col <= labwareType.NumColumns; col++ {
			labware.Slots = append(labware.Slots, domain.Slot{
				ID:        l.f.id(),
				LabwareID: labware.ID,
				Address:   domain.NewAddress(row, col),
			})
		}
	}
	l.f.labware = append(l.f.labware, labware)
	return labware, nil
}

func (l *fakeLabware) FindByBarcode(ctx context.Context, barcode string) (*domain.Labware, error) {
	for _, lw := range l.f.labware {
		if nameEq(lw.Barcode, barcode) {
			return lw, nil
		}
	}
	return nil, nil
}

func (l *fakeLabware) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	lw, _ := l.FindByBarcode(ctx, barcode)
	return lw != nil, nil
}

func (l *fakeLabware) ExternalBarcodeExists(ctx context.Context, externalBarcode string) (bool, error) {
	for _, lw := range l.f.labware {
		if lw.ExternalBarcode != "" && nameEq(lw.ExternalBarcode, externalBarcode) {
			return true, nil
		}
	}
	return false, nil
}

func (l *fakeLabware) ContainingTissues(ctx context.Context, tissueIDs []int) (map[int][]domain.Labware, error) {
	result := make(map[int][]domain.Labware)
	for _, id := range tissueIDs {
		if labware, ok := l.f.containing[id]; ok {
			result[id] = labware
		}
	}
	return result, nil
}

func (l *fakeLabware) PlaceSample(ctx context.Context, slotID, sampleID int) error {
	l.f.placements[slotID] = append(l.f.placements[slotID], sampleID)
	return nil
}

// Samples

type fakeSamples struct{ f *fakeStore }

func (s *fakeSamples) Create(ctx context.Context, sample *domain.Sample) error {
	sample.ID = s.f.id()
	s.f.samples = append(s.f.samples, sample)
	return nil
}

// Operations

type fakeOperations struct{ f *fakeStore }

func (o *fakeOperations) Create(ctx context.Context, opType, username string, actions []domain.Action) (*domain.Operation, error) {
	op := &domain.Operation{
		ID:            o.f.id(),
		OperationType: opType,
		Username:      username,
		PerformedAt:   time.Now(),
		Actions:       actions,
	}
	o.f.operations = append(o.f.operations, op)
	return op, nil
}

func (o *fakeOperations) LinkBioRisks(ctx context.Context, links []domain.SampleBioRisk) error {
	o.f.riskLinks = append(o.f.riskLinks, links...)
	return nil
}

// Works

type fakeWorks struct{ f *fakeStore }

func (w *fakeWorks) FindByWorkNumbers(ctx context.Context, workNumbers []string) ([]*domain.Work, error) {
	var found []*domain.Work
	for _, work := range w.f.works {
		for _, number := range workNumbers {
			if nameEq(work.WorkNumber, number) {
				found = append(found, work)
				break
			}
		}
	}
	return found, nil
}

func (w *fakeWorks) LinkOperations(ctx context.Context, workIDs, operationIDs []int) error {
	for _, workID := range workIDs {
		for _, opID := range operationIDs {
			w.f.workLinks[[2]int{workID, opID}] = true
		}
	}
	return nil
}

// Request builders

// blockRequest builds a one-labware, one-entry block registration that
// passes every rule against newFakeStore's reference data.
func blockRequest() *domain.BlockRegisterRequest {
	return &domain.BlockRegisterRequest{
		Labware: []domain.LabwareInput{{
			LabwareType:     "Proviasette",
			ExternalBarcode: "EXT-BC-1",
			Contents: []domain.SpecimenInput{{
				DonorIdentifier:    "DONOR1",
				LifeStage:          "adult",
				Species:            "Human",
				Hmdmc:              "20/123",
				TissueType:         "Heart",
				SpatialLocation:    1,
				Replicate:          "1",
				ExternalIdentifier: "TISSUE-1",
				Medium:             "OCT",
				Fixative:           "None",
				CellClass:          "Tissue",
				BioRiskCode:        "ABC",
				CollectionDate:     "2024-03-01",
			}},
		}},
		WorkNumbers: []string{"SGP1"},
	}
}

// sectionRequest builds a slide with two sections of one tissue.
func sectionRequest() *domain.SectionRegisterRequest {
	one, two := 1, 2
	entry := domain.SpecimenInput{
		DonorIdentifier:    "DONOR1",
		LifeStage:          "adult",
		Species:            "Human",
		Hmdmc:              "20/123",
		TissueType:         "Heart",
		SpatialLocation:    1,
		Replicate:          "1",
		ExternalIdentifier: "TISSUE-1",
		Medium:             "OCT",
		Fixative:           "None",
		CellClass:          "Tissue",
		BioRiskCode:        "ABC",
		CollectionDate:     "2024-03-01",
	}
	first := entry
	first.Addresses = []string{"A1"}
	first.SectionNumber = &one
	second := entry
	second.Addresses = []string{"A2"}
	second.SectionNumber = &two

	return &domain.SectionRegisterRequest{
		Labware: []domain.LabwareInput{{
			LabwareType: "Slide",
			Contents:    []domain.SpecimenInput{first, second},
		}},
		WorkNumbers: []string{"SGP1"},
	}
}
