package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

var externalBarcodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// validateExternalBarcodes checks request-supplied external barcodes:
// uniqueness within the request, the reserved system prefix, format,
// and uniqueness against both the external-barcode and the
// system-barcode namespaces of the store.
func (v *Validator) validateExternalBarcodes(ctx context.Context, req *domain.RegistrationRequest) error {
	repeated := make(map[string]struct{})
	reserved := make(map[string]struct{})
	malformed := make(map[string]struct{})
	inUse := make(map[string]struct{})
	clashing := make(map[string]struct{})

	seen := make(map[string]struct{})
	for i := range req.Labware {
		barcode := strings.TrimSpace(req.Labware[i].ExternalBarcode)
		if barcode == "" {
			continue
		}
		key := upperKey(barcode)
		if _, ok := seen[key]; ok {
			repeated[barcode] = struct{}{}
			continue
		}
		seen[key] = struct{}{}

		if strings.HasPrefix(key, domain.BarcodePrefix) {
			reserved[barcode] = struct{}{}
		}
		if !externalBarcodePattern.MatchString(barcode) {
			malformed[barcode] = struct{}{}
			continue
		}

		exists, err := v.store.Labware().ExternalBarcodeExists(ctx, barcode)
		if err != nil {
			return fmt.Errorf("checking external barcode %q: %w", barcode, err)
		}
		if exists {
			inUse[barcode] = struct{}{}
		}

		// The system barcode namespace is checked separately: an
		// external barcode may not shadow an assigned barcode either.
		exists, err = v.store.Labware().BarcodeExists(ctx, barcode)
		if err != nil {
			return fmt.Errorf("checking barcode %q: %w", barcode, err)
		}
		if exists {
			clashing[barcode] = struct{}{}
		}
	}

	if len(repeated) > 0 {
		v.problems.Addf("Repeated external barcodes: %s", describeSet(repeated))
	}
	if len(reserved) > 0 {
		v.problems.Addf("External barcodes cannot start with %s: %s", domain.BarcodePrefix, describeSet(reserved))
	}
	if len(malformed) > 0 {
		v.problems.Addf("Invalid external barcodes: %s", describeSet(malformed))
	}
	if len(inUse) > 0 {
		v.problems.Addf("External barcodes already in use: %s", describeSet(inUse))
	}
	if len(clashing) > 0 {
		v.problems.Addf("External barcodes clash with existing labware barcodes: %s", describeSet(clashing))
	}

	return nil
}
