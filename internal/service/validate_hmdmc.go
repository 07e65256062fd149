package service

import (
	"context"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

// validateHmdmcs applies the HuMFre rule across every entry: a HuMFre
// number must be present iff the donor's species requires one and the
// cell classification requires one, and a number supplied for a species
// that does not require it is itself a violation.
//
// Block and original-sample registrations consolidate the missing and
// unexpected cases into at most one message each; section registrations
// report them per tissue. The two shapes never appear in the same pass.
// Unknown and disabled numbers are always aggregated.
func (v *Validator) validateHmdmcs(ctx context.Context, req *domain.RegistrationRequest) error {
	perTissue := req.Kind == domain.SectionRegistration

	missing := false
	unexpected := false
	unknown := make(map[string]struct{})
	disabled := make(map[string]struct{})

	for _, entry := range req.Entries() {
		// Species and cell class resolution is memoized; their own rule
		// groups report unknown names, so an unresolved value here just
		// makes the requirement indeterminate and the check is skipped.
		species, err := lookupCached(ctx, v.species, entry.SpeciesName, v.store.RefData().FindSpecies)
		if err != nil {
			return err
		}
		cellClass, err := lookupCached(ctx, v.cellClasses, entry.CellClassName, v.store.RefData().FindCellClass)
		if err != nil {
			return err
		}

		code := strings.TrimSpace(entry.HmdmcCode)

		if code == "" {
			required := species != nil && species.RequiresHmdmc && cellClass != nil && cellClass.RequiresHmdmc
			if !required {
				continue
			}
			if perTissue {
				v.problems.Addf("No HuMFre number given for tissue %s.", entry.ExternalName)
			} else {
				missing = true
			}
			continue
		}

		if species != nil && !species.RequiresHmdmc {
			if perTissue {
				v.problems.Addf("Unexpected HuMFre number given for tissue %s.", entry.ExternalName)
			} else {
				unexpected = true
			}
		}

		hmdmc, err := lookupCached(ctx, v.hmdmcs, code, v.store.RefData().FindHmdmc)
		if err != nil {
			return err
		}
		switch {
		case hmdmc == nil:
			unknown[code] = struct{}{}
		case !hmdmc.Enabled:
			disabled[code] = struct{}{}
		}
	}

	if missing {
		v.problems.Add("Missing HuMFre number.")
	}
	if unexpected {
		v.problems.Add("Unexpected HuMFre number supplied for non-human samples.")
	}
	if len(unknown) > 0 {
		v.problems.Addf("Unknown HuMFre numbers: %s", describeSet(unknown))
	}
	if len(disabled) > 0 {
		v.problems.Addf("HuMFre numbers not enabled: %s", describeSet(disabled))
	}

	return nil
}
