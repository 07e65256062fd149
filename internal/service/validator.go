package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// Validator is the multi-pass registration rule engine. One instance
// serves exactly one request: every name it resolves is memoized in
// request-local, upper-cased maps, so repeated lookups within a pass
// return the identical entity and nothing leaks between calls.
//
// Expected bad data never surfaces as an error; every discoverable
// problem is accumulated and all rule groups run regardless of earlier
// failures. Errors are reserved for store faults.
type Validator struct {
	store    domain.Store
	log      *logrus.Logger
	problems *ProblemSet

	species      map[string]*domain.Species
	hmdmcs       map[string]*domain.Hmdmc
	tissueTypes  map[string]*domain.TissueType
	labwareTypes map[string]*domain.LabwareType
	media        map[string]*domain.Medium
	fixatives    map[string]*domain.Fixative
	cellClasses  map[string]*domain.CellClass
	bioRisks     map[string]*domain.BioRisk

	donors     map[string]*domain.Donor
	donorOrder []string

	tissues     map[string]*domain.Tissue
	tissueOrder []string

	collectionDates map[string]*time.Time

	works []*domain.Work

	now func() time.Time
}

// NewValidator creates a validator for a single registration request.
func NewValidator(store domain.Store, logger *logrus.Logger) *Validator {
	return &Validator{
		store:           store,
		log:             logger,
		problems:        NewProblemSet(),
		species:         make(map[string]*domain.Species),
		hmdmcs:          make(map[string]*domain.Hmdmc),
		tissueTypes:     make(map[string]*domain.TissueType),
		labwareTypes:    make(map[string]*domain.LabwareType),
		media:           make(map[string]*domain.Medium),
		fixatives:       make(map[string]*domain.Fixative),
		cellClasses:     make(map[string]*domain.CellClass),
		bioRisks:        make(map[string]*domain.BioRisk),
		donors:          make(map[string]*domain.Donor),
		tissues:         make(map[string]*domain.Tissue),
		collectionDates: make(map[string]*time.Time),
		now:             time.Now,
	}
}

// Validate runs every rule group over the request and returns the
// accumulated, deduplicated, insertion-ordered problems. The order of
// the groups affects only message ordering, not correctness.
func (v *Validator) Validate(ctx context.Context, req *domain.RegistrationRequest) ([]string, error) {
	type ruleGroup struct {
		name string
		run  func(context.Context, *domain.RegistrationRequest) error
	}
	groups := []ruleGroup{
		{"donors", v.validateDonors},
		{"hmdmcs", v.validateHmdmcs},
		{"spatial locations", v.validateSpatialLocations},
		{"labware types", v.validateLabwareTypes},
		{"media", v.validateMedia},
		{"fixatives", v.validateFixatives},
		{"slot addresses", v.validateSlotAddresses},
		{"section numbers", v.validateSectionNumbers},
		{"external barcodes", v.validateExternalBarcodes},
		{"collection dates", v.validateCollectionDates},
		{"existing tissues", v.validateExistingTissues},
		{"new tissues", v.validateNewTissues},
		{"bio risks", v.validateBioRisks},
		{"cell classes", v.validateCellClasses},
		{"works", v.validateWorks},
	}

	for _, group := range groups {
		if err := group.run(ctx, req); err != nil {
			return nil, err
		}
	}

	if err := v.buildTissues(ctx, req); err != nil {
		return nil, err
	}

	v.log.WithFields(logrus.Fields{
		"kind":     req.Kind,
		"labware":  len(req.Labware),
		"problems": v.problems.Len(),
	}).Info("Registration validation completed")

	return v.problems.List(), nil
}

// Problems returns the problems accumulated so far.
func (v *Validator) Problems() []string {
	return v.problems.List()
}

// OK reports whether validation found no problems.
func (v *Validator) OK() bool {
	return v.problems.Empty()
}

// Typed accessors. All return entities already resolved during
// validation; they never hit the store. Donors and tissues may be
// synthesized, unpersisted values when the request introduces them.

// Donor returns the resolved or synthesized donor for a name.
func (v *Validator) Donor(name string) *domain.Donor {
	return v.donors[upperKey(name)]
}

// Tissue returns the resolved or synthesized tissue for an external name.
func (v *Validator) Tissue(externalName string) *domain.Tissue {
	return v.tissues[upperKey(externalName)]
}

// TissueType returns the resolved tissue type for a name.
func (v *Validator) TissueType(name string) *domain.TissueType {
	return v.tissueTypes[upperKey(name)]
}

// SpatialLocation returns the resolved spatial location for a tissue
// type name and code.
func (v *Validator) SpatialLocation(tissueTypeName string, code int) *domain.SpatialLocation {
	tt := v.tissueTypes[upperKey(tissueTypeName)]
	if tt == nil {
		return nil
	}
	for i := range tt.SpatialLocations {
		if tt.SpatialLocations[i].Code == code {
			return &tt.SpatialLocations[i]
		}
	}
	return nil
}

// LabwareType returns the resolved labware type for a name.
func (v *Validator) LabwareType(name string) *domain.LabwareType {
	return v.labwareTypes[upperKey(name)]
}

// Medium returns the resolved medium for a name.
func (v *Validator) Medium(name string) *domain.Medium {
	return v.media[upperKey(name)]
}

// Fixative returns the resolved fixative for a name.
func (v *Validator) Fixative(name string) *domain.Fixative {
	return v.fixatives[upperKey(name)]
}

// Hmdmc returns the resolved HuMFre number for a code.
func (v *Validator) Hmdmc(code string) *domain.Hmdmc {
	return v.hmdmcs[upperKey(code)]
}

// BioRisk returns the resolved bio risk for a code.
func (v *Validator) BioRisk(code string) *domain.BioRisk {
	return v.bioRisks[upperKey(code)]
}

// CellClass returns the resolved cell class for a name.
func (v *Validator) CellClass(name string) *domain.CellClass {
	return v.cellClasses[upperKey(name)]
}

// CollectionDate returns the parsed collection date for an external
// name, or nil if none was supplied.
func (v *Validator) CollectionDate(externalName string) *time.Time {
	return v.collectionDates[upperKey(externalName)]
}

// UsableWorks returns the resolved, usable works in request order.
func (v *Validator) UsableWorks() []*domain.Work {
	return v.works
}

// Donors returns every resolved or synthesized donor in first-seen order.
func (v *Validator) Donors() []*domain.Donor {
	donors := make([]*domain.Donor, 0, len(v.donorOrder))
	for _, key := range v.donorOrder {
		donors = append(donors, v.donors[key])
	}
	return donors
}

// Tissues returns every resolved or synthesized tissue in first-seen order.
func (v *Validator) Tissues() []*domain.Tissue {
	tissues := make([]*domain.Tissue, 0, len(v.tissueOrder))
	for _, key := range v.tissueOrder {
		tissues = append(tissues, v.tissues[key])
	}
	return tissues
}

// Lookup plumbing

// upperKey normalizes a name into its cache key.
func upperKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// lookupCached resolves a name through the request-local cache. A nil
// entry with present key records a known-missing name, so the store is
// consulted at most once per distinct name.
func lookupCached[T any](ctx context.Context, cache map[string]*T, name string, find func(context.Context, string) (*T, error)) (*T, error) {
	key := upperKey(name)
	if cached, ok := cache[key]; ok {
		return cached, nil
	}
	found, err := find(ctx, name)
	if err != nil {
		return nil, err
	}
	cache[key] = found
	return found, nil
}

// resolveNames is the shared generic-by-name checker: it resolves every
// supplied name for one field, aggregating "missing" and the set of
// unknown or disabled names into single combined messages.
func resolveNames[T any](ctx context.Context, v *Validator, names []string, field, plural string,
	cache map[string]*T, find func(context.Context, string) (*T, error), enabled func(*T) bool) error {
	missing := false
	unknown := make(map[string]struct{})
	disabled := make(map[string]struct{})
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			missing = true
			continue
		}
		entity, err := lookupCached(ctx, cache, name, find)
		if err != nil {
			return err
		}
		if entity == nil {
			unknown[name] = struct{}{}
			continue
		}
		if enabled != nil && !enabled(entity) {
			disabled[name] = struct{}{}
		}
	}
	if missing {
		v.problems.Addf("Missing %s.", field)
	}
	if len(unknown) > 0 {
		v.problems.Addf("Unknown %s: %s", plural, describeSet(unknown))
	}
	if len(disabled) > 0 {
		v.problems.Addf("%s not enabled: %s", upperFirst(plural), describeSet(disabled))
	}
	return nil
}

// upperFirst capitalizes the first letter of a message fragment.
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
