package service

import (
	"context"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

// validateSpatialLocations resolves each entry's tissue type name and
// spatial location code. Failure modes, one message class each: missing
// tissue type name, unknown tissue type, unknown code, disabled
// location. The location check is skipped when the tissue type itself
// is unresolved, and the enabled check only applies under an enabled
// tissue type.
func (v *Validator) validateSpatialLocations(ctx context.Context, req *domain.RegistrationRequest) error {
	missing := false
	unknown := make(map[string]struct{})

	for _, entry := range req.Entries() {
		name := strings.TrimSpace(entry.TissueTypeName)
		if name == "" {
			missing = true
			continue
		}
		tissueType, err := lookupCached(ctx, v.tissueTypes, name, v.store.RefData().FindTissueType)
		if err != nil {
			return err
		}
		if tissueType == nil {
			unknown[name] = struct{}{}
			continue
		}

		location := v.SpatialLocation(name, entry.SpatialLocationCode)
		if location == nil {
			v.problems.Addf("Unknown spatial location %d for tissue type %s.", entry.SpatialLocationCode, tissueType.Name)
			continue
		}
		if tissueType.Enabled && !location.Enabled {
			v.problems.Addf("Spatial location %d of tissue type %s is not enabled.", location.Code, tissueType.Name)
		}
	}

	if missing {
		v.problems.Add("Missing tissue type.")
	}
	if len(unknown) > 0 {
		v.problems.Addf("Unknown tissue types: %s", describeSet(unknown))
	}

	return nil
}
