package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/specimen-registry-server/internal/domain"
)

// tissueFieldCheck describes one descriptive field that a request entry
// flagged as existing tissue must agree on with the persisted record.
// A fixed table of descriptors, evaluated in a loop; comparison is
// case-insensitive.
type tissueFieldCheck struct {
	name     string
	stored   func(*domain.Tissue) string
	supplied func(*domain.SpecimenEntry) string
}

var existingTissueChecks = []tissueFieldCheck{
	{
		name: "donor",
		stored: func(t *domain.Tissue) string {
			if t.Donor == nil {
				return ""
			}
			return t.Donor.DonorName
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.DonorName },
	},
	{
		name: "HuMFre number",
		stored: func(t *domain.Tissue) string {
			if t.Hmdmc == nil {
				return ""
			}
			return t.Hmdmc.Hmdmc
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.HmdmcCode },
	},
	{
		name: "tissue type",
		stored: func(t *domain.Tissue) string {
			if t.TissueType == nil {
				return ""
			}
			return t.TissueType.Name
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.TissueTypeName },
	},
	{
		name: "spatial location",
		stored: func(t *domain.Tissue) string {
			if t.SpatialLocation == nil {
				return ""
			}
			return strconv.Itoa(t.SpatialLocation.Code)
		},
		supplied: func(e *domain.SpecimenEntry) string { return strconv.Itoa(e.SpatialLocationCode) },
	},
	{
		name:     "replicate",
		stored:   func(t *domain.Tissue) string { return t.Replicate },
		supplied: func(e *domain.SpecimenEntry) string { return e.Replicate },
	},
	{
		name: "medium",
		stored: func(t *domain.Tissue) string {
			if t.Medium == nil {
				return ""
			}
			return t.Medium.Name
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.MediumName },
	},
	{
		name: "fixative",
		stored: func(t *domain.Tissue) string {
			if t.Fixative == nil {
				return ""
			}
			return t.Fixative.Name
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.FixativeName },
	},
	{
		name: "cell class",
		stored: func(t *domain.Tissue) string {
			if t.CellClass == nil {
				return ""
			}
			return t.CellClass.Name
		},
		supplied: func(e *domain.SpecimenEntry) string { return e.CellClassName },
	},
}

// validateExistingTissues applies only to block registrations: every
// entry flagged as existing tissue must resolve to a persisted tissue,
// and every descriptive field the request supplies must match the
// stored value. The collection date is exempt when the stored value is
// absent, since that is the one field registration may backfill.
func (v *Validator) validateExistingTissues(ctx context.Context, req *domain.RegistrationRequest) error {
	if req.Kind != domain.BlockRegistration {
		return nil
	}

	var names []string
	seen := make(map[string]struct{})
	for _, entry := range req.Entries() {
		if !entry.ExistingTissue || strings.TrimSpace(entry.ExternalName) == "" {
			continue
		}
		key := upperKey(entry.ExternalName)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, entry.ExternalName)
	}
	if len(names) == 0 {
		return nil
	}

	tissues, err := v.store.Tissues().FindByExternalNames(ctx, names)
	if err != nil {
		return fmt.Errorf("finding existing tissues: %w", err)
	}
	byName := make(map[string]*domain.Tissue, len(tissues))
	for _, tissue := range tissues {
		byName[upperKey(tissue.ExternalName)] = tissue
	}

	checked := make(map[string]struct{})
	for _, entry := range req.Entries() {
		if !entry.ExistingTissue || strings.TrimSpace(entry.ExternalName) == "" {
			continue
		}
		key := upperKey(entry.ExternalName)
		tissue := byName[key]
		if tissue == nil {
			if _, ok := checked[key]; !ok {
				checked[key] = struct{}{}
				v.problems.Addf("Existing tissue %s not found.", entry.ExternalName)
			}
			continue
		}
		v.recordTissue(key, tissue)

		for _, check := range existingTissueChecks {
			supplied := strings.TrimSpace(check.supplied(entry))
			if supplied == "" {
				continue
			}
			// Spatial location code 0 is a real code, but when the
			// stored tissue has no location a zero just means "not
			// supplied".
			if check.name == "spatial location" && supplied == "0" && tissue.SpatialLocation == nil {
				continue
			}
			stored := check.stored(tissue)
			if !strings.EqualFold(supplied, stored) {
				v.problems.Addf("Expected %s to be %s for existing tissue %s.", check.name, stored, tissue.ExternalName)
			}
		}

		if raw := strings.TrimSpace(entry.CollectionDate); raw != "" && tissue.CollectionDate != nil {
			if date, err := time.Parse(collectionDateLayout, raw); err == nil && !date.Equal(*tissue.CollectionDate) {
				v.problems.Addf("Expected collection date to be %s for existing tissue %s.",
					tissue.CollectionDate.Format(collectionDateLayout), tissue.ExternalName)
			}
		}
	}

	return nil
}

// validateNewTissues enforces external-name uniqueness for new tissue:
// duplicates within the request (sections of one tissue excepted) and
// names already present in the store. This is a request-local second
// layer over the clash checker; the store's unique index is the final
// backstop against races.
func (v *Validator) validateNewTissues(ctx context.Context, req *domain.RegistrationRequest) error {
	missing := false
	repeated := make(map[string]struct{})
	seen := make(map[string]struct{})
	var names []string

	for _, entry := range req.Entries() {
		if entry.ExistingTissue {
			continue
		}
		name := strings.TrimSpace(entry.ExternalName)
		if name == "" {
			missing = true
			continue
		}
		key := upperKey(name)
		if _, ok := seen[key]; ok {
			// Section registration legitimately places several sections
			// of one tissue; the other flavors may not repeat a name.
			if req.Kind != domain.SectionRegistration {
				repeated[name] = struct{}{}
			}
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	if missing {
		v.problems.Add("Missing external identifier.")
	}
	if len(repeated) > 0 {
		v.problems.Addf("Repeated external identifiers: %s", describeSet(repeated))
	}

	if len(names) > 0 {
		tissues, err := v.store.Tissues().FindByExternalNames(ctx, names)
		if err != nil {
			return fmt.Errorf("checking external identifiers: %w", err)
		}
		if len(tissues) > 0 {
			existing := make(map[string]struct{})
			for _, tissue := range tissues {
				existing[tissue.ExternalName] = struct{}{}
			}
			v.problems.Addf("External identifiers already in use: %s", describeSet(existing))
		}
	}

	return nil
}

// buildTissues synthesizes an unpersisted tissue value for every new
// external name, wiring in the entities the other rule groups resolved.
// Existing tissues were already recorded by validateExistingTissues.
func (v *Validator) buildTissues(ctx context.Context, req *domain.RegistrationRequest) error {
	for _, entry := range req.Entries() {
		name := strings.TrimSpace(entry.ExternalName)
		if name == "" {
			continue
		}
		key := upperKey(name)
		if _, ok := v.tissues[key]; ok {
			continue
		}
		tissue := &domain.Tissue{
			ExternalName:    name,
			Replicate:       strings.TrimSpace(entry.Replicate),
			TissueType:      v.TissueType(entry.TissueTypeName),
			SpatialLocation: v.SpatialLocation(entry.TissueTypeName, entry.SpatialLocationCode),
			Donor:           v.Donor(entry.DonorName),
			Medium:          v.Medium(entry.MediumName),
			Fixative:        v.Fixative(entry.FixativeName),
			CellClass:       v.CellClass(entry.CellClassName),
			Hmdmc:           v.Hmdmc(entry.HmdmcCode),
			CollectionDate:  v.collectionDates[key],
		}
		v.recordTissue(key, tissue)
	}
	return nil
}

func (v *Validator) recordTissue(key string, tissue *domain.Tissue) {
	if _, ok := v.tissues[key]; ok {
		return
	}
	v.tissues[key] = tissue
	v.tissueOrder = append(v.tissueOrder, key)
}
