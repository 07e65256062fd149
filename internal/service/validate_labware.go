package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

// validateLabwareTypes resolves every labware item's labware type name.
func (v *Validator) validateLabwareTypes(ctx context.Context, req *domain.RegistrationRequest) error {
	names := make([]string, 0, len(req.Labware))
	for i := range req.Labware {
		names = append(names, req.Labware[i].LabwareTypeName)
	}
	return resolveNames(ctx, v, names, "labware type", "labware types",
		v.labwareTypes, v.store.RefData().FindLabwareType, nil)
}

// validateMedia resolves every entry's medium name.
func (v *Validator) validateMedia(ctx context.Context, req *domain.RegistrationRequest) error {
	var names []string
	for _, entry := range req.Entries() {
		names = append(names, entry.MediumName)
	}
	return resolveNames(ctx, v, names, "medium", "media",
		v.media, v.store.RefData().FindMedium,
		func(m *domain.Medium) bool { return m.Enabled })
}

// validateFixatives resolves every entry's fixative name.
func (v *Validator) validateFixatives(ctx context.Context, req *domain.RegistrationRequest) error {
	var names []string
	for _, entry := range req.Entries() {
		names = append(names, entry.FixativeName)
	}
	return resolveNames(ctx, v, names, "fixative", "fixatives",
		v.fixatives, v.store.RefData().FindFixative,
		func(f *domain.Fixative) bool { return f.Enabled })
}

// validateSlotAddresses checks that every address in the request parses
// and fits inside the declared layout of its labware type. Offending
// addresses are grouped per labware type in the message. Skipped for
// items whose labware type did not resolve.
func (v *Validator) validateSlotAddresses(ctx context.Context, req *domain.RegistrationRequest) error {
	invalid := make(map[string]map[string]struct{})
	var typeOrder []string

	for i := range req.Labware {
		item := &req.Labware[i]
		labwareType := v.LabwareType(item.LabwareTypeName)
		if labwareType == nil {
			continue
		}
		for j := range item.Entries {
			for _, raw := range item.Entries[j].Addresses {
				addr, err := domain.ParseAddress(raw)
				if err == nil && labwareType.HasAddress(addr) {
					continue
				}
				set := invalid[labwareType.Name]
				if set == nil {
					set = make(map[string]struct{})
					invalid[labwareType.Name] = set
					typeOrder = append(typeOrder, labwareType.Name)
				}
				set[strings.TrimSpace(raw)] = struct{}{}
			}
			if len(item.Entries[j].Addresses) == 0 {
				v.problems.Addf("No address given for a sample in %s.", labwareType.Name)
			}
		}
	}

	for _, name := range typeOrder {
		v.problems.Addf("Invalid addresses for labware type %s: %s", name, describeSet(invalid[name]))
	}

	return nil
}

// validateSectionNumbers applies only to section registrations: every
// entry needs a non-negative section number, and numbers must be
// distinct for entries sharing a tissue.
func (v *Validator) validateSectionNumbers(ctx context.Context, req *domain.RegistrationRequest) error {
	if req.Kind != domain.SectionRegistration {
		return nil
	}

	missing := false
	negative := false
	perTissue := make(map[string]map[int]int)

	for _, entry := range req.Entries() {
		if entry.SectionNumber == nil {
			missing = true
			continue
		}
		if *entry.SectionNumber < 0 {
			negative = true
			continue
		}
		key := upperKey(entry.ExternalName)
		if key == "" {
			continue
		}
		if perTissue[key] == nil {
			perTissue[key] = make(map[int]int)
		}
		perTissue[key][*entry.SectionNumber]++
	}

	if missing {
		v.problems.Add("Missing section number.")
	}
	if negative {
		v.problems.Add("Section numbers cannot be negative.")
	}

	keys := make([]string, 0, len(perTissue))
	for key := range perTissue {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var repeated []int
		for number, count := range perTissue[key] {
			if count > 1 {
				repeated = append(repeated, number)
			}
		}
		sort.Ints(repeated)
		for _, number := range repeated {
			v.problems.Add(fmt.Sprintf("Repeated section number %d for tissue %s.", number, key))
		}
	}

	return nil
}
