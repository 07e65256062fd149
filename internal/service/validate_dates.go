package service

import (
	"context"
	"strings"
	"time"

	"github.com/specimen-registry-server/internal/domain"
)

const collectionDateLayout = "2006-01-02"

// validateCollectionDates parses every supplied collection date,
// rejects future dates, requires a date for fetal human samples, and
// flags entries that share an external identifier but disagree on the
// date. Parsed dates are recorded per external name for the tissue
// synthesis step.
func (v *Validator) validateCollectionDates(ctx context.Context, req *domain.RegistrationRequest) error {
	malformed := make(map[string]struct{})
	future := make(map[string]struct{})
	missingFetal := false
	inconsistent := make(map[string]struct{})
	var inconsistentOrder []string

	today := v.now().Truncate(24 * time.Hour)

	for _, entry := range req.Entries() {
		raw := strings.TrimSpace(entry.CollectionDate)
		if raw == "" {
			required, err := v.fetalHumanEntry(ctx, entry)
			if err != nil {
				return err
			}
			if required {
				missingFetal = true
			}
			continue
		}

		date, err := time.Parse(collectionDateLayout, raw)
		if err != nil {
			malformed[raw] = struct{}{}
			continue
		}
		if date.After(today) {
			future[raw] = struct{}{}
		}

		key := upperKey(entry.ExternalName)
		if key == "" {
			continue
		}
		if recorded, ok := v.collectionDates[key]; ok {
			if recorded == nil || !recorded.Equal(date) {
				if _, dup := inconsistent[key]; !dup {
					inconsistent[key] = struct{}{}
					inconsistentOrder = append(inconsistentOrder, entry.ExternalName)
				}
			}
			continue
		}
		v.collectionDates[key] = &date
	}

	if len(malformed) > 0 {
		v.problems.Addf("Invalid collection dates: %s", describeSet(malformed))
	}
	if len(future) > 0 {
		v.problems.Addf("Collection dates cannot be in the future: %s", describeSet(future))
	}
	if missingFetal {
		v.problems.Add("Missing collection date for fetal human samples.")
	}
	for _, name := range inconsistentOrder {
		v.problems.Addf("Inconsistent collection dates specified for tissue %s.", name)
	}

	return nil
}

// fetalHumanEntry reports whether the entry describes a fetal sample of
// a species that requires ethics tracking. Unresolved species leave the
// requirement indeterminate.
func (v *Validator) fetalHumanEntry(ctx context.Context, entry *domain.SpecimenEntry) (bool, error) {
	stage := domain.LifeStage(strings.ToLower(strings.TrimSpace(entry.LifeStage)))
	if stage != domain.FETAL {
		return false, nil
	}
	species, err := lookupCached(ctx, v.species, entry.SpeciesName, v.store.RefData().FindSpecies)
	if err != nil {
		return false, err
	}
	return species != nil && species.RequiresHmdmc, nil
}
