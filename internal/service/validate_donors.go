package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

var donorNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// validateDonors checks donor identifiers, life stages and species, the
// in-request self-consistency of each donor, and agreement with any
// donor already persisted under the same name. It also resolves or
// synthesizes the donor entity for every distinct name.
func (v *Validator) validateDonors(ctx context.Context, req *domain.RegistrationRequest) error {
	missingName := false
	badNames := make(map[string]struct{})
	missingLifeStage := false
	badLifeStages := make(map[string]struct{})
	speciesNames := make([]string, 0, len(req.Labware))

	type donorSeen struct {
		name       string
		lifeStages map[domain.LifeStage]struct{}
		species    map[string]struct{}
	}
	seen := make(map[string]*donorSeen)
	var seenOrder []string

	for _, entry := range req.Entries() {
		name := strings.TrimSpace(entry.DonorName)
		if name == "" {
			missingName = true
		} else if !donorNamePattern.MatchString(name) {
			badNames[name] = struct{}{}
		}

		stage := domain.LifeStage(strings.ToLower(strings.TrimSpace(entry.LifeStage)))
		switch {
		case stage == "":
			missingLifeStage = true
		case !stage.Valid():
			badLifeStages[entry.LifeStage] = struct{}{}
		}

		speciesNames = append(speciesNames, entry.SpeciesName)

		if name == "" {
			continue
		}
		key := upperKey(name)
		ds := seen[key]
		if ds == nil {
			ds = &donorSeen{
				name:       name,
				lifeStages: make(map[domain.LifeStage]struct{}),
				species:    make(map[string]struct{}),
			}
			seen[key] = ds
			seenOrder = append(seenOrder, key)
		}
		if stage.Valid() {
			ds.lifeStages[stage] = struct{}{}
		}
		if s := strings.TrimSpace(entry.SpeciesName); s != "" {
			ds.species[upperKey(s)] = struct{}{}
		}
	}

	if missingName {
		v.problems.Add("Missing donor identifier.")
	}
	if len(badNames) > 0 {
		v.problems.Addf("Donor identifiers must contain only letters, numbers, hyphens and underscores: %s", describeSet(badNames))
	}
	if missingLifeStage {
		v.problems.Add("Missing life stage.")
	}
	if len(badLifeStages) > 0 {
		v.problems.Addf("Unknown life stages: %s", describeSet(badLifeStages))
	}

	if err := resolveNames(ctx, v, speciesNames, "species", "species",
		v.species, v.store.RefData().FindSpecies,
		func(s *domain.Species) bool { return s.Enabled }); err != nil {
		return err
	}

	// Self-consistency and cross-check against persisted donors, one
	// donor at a time in first-seen order.
	for _, key := range seenOrder {
		ds := seen[key]
		if len(ds.lifeStages) > 1 {
			v.problems.Addf("Multiple life stages specified for donor %s.", ds.name)
		}
		if len(ds.species) > 1 {
			v.problems.Addf("Multiple species specified for donor %s.", ds.name)
		}

		existing, err := v.store.Donors().FindByName(ctx, ds.name)
		if err != nil {
			return fmt.Errorf("finding donor %q: %w", ds.name, err)
		}

		var stage domain.LifeStage
		for ls := range ds.lifeStages {
			stage = ls
			break
		}
		var speciesKey string
		for s := range ds.species {
			speciesKey = s
			break
		}

		if existing != nil {
			// The persisted record wins; request data must match it
			// exactly rather than silently overwriting.
			if len(ds.lifeStages) == 1 && existing.LifeStage != stage {
				v.problems.Addf("Expected life stage %s for existing donor %s.", existing.LifeStage, existing.DonorName)
			}
			if len(ds.species) == 1 && existing.Species != nil && upperKey(existing.Species.Name) != speciesKey {
				v.problems.Addf("Expected species %s for existing donor %s.", existing.Species.Name, existing.DonorName)
			}
			v.recordDonor(key, existing)
			continue
		}

		donor := &domain.Donor{
			DonorName: ds.name,
			LifeStage: stage,
			Species:   v.species[speciesKey],
		}
		v.recordDonor(key, donor)
	}

	return nil
}

func (v *Validator) recordDonor(key string, donor *domain.Donor) {
	if _, ok := v.donors[key]; ok {
		return
	}
	v.donors[key] = donor
	v.donorOrder = append(v.donorOrder, key)
}
