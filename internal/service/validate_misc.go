package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/specimen-registry-server/internal/domain"
)

// validateBioRisks resolves every entry's bio risk code through one
// bulk lookup and reports unresolved codes in bulk.
func (v *Validator) validateBioRisks(ctx context.Context, req *domain.RegistrationRequest) error {
	missing := false
	var codes []string
	seen := make(map[string]struct{})
	for _, entry := range req.Entries() {
		code := strings.TrimSpace(entry.BioRiskCode)
		if code == "" {
			missing = true
			continue
		}
		key := upperKey(code)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, code)
	}

	if missing {
		v.problems.Add("Missing bio risk code.")
	}
	if len(codes) == 0 {
		return nil
	}

	found, err := v.store.RefData().FindBioRisks(ctx, codes)
	if err != nil {
		return fmt.Errorf("finding bio risks: %w", err)
	}

	unknown := make(map[string]struct{})
	disabled := make(map[string]struct{})
	for _, code := range codes {
		risk := found[upperKey(code)]
		v.bioRisks[upperKey(code)] = risk
		switch {
		case risk == nil:
			unknown[code] = struct{}{}
		case !risk.Enabled:
			disabled[code] = struct{}{}
		}
	}

	if len(unknown) > 0 {
		v.problems.Addf("Unknown bio risk codes: %s", describeSet(unknown))
	}
	if len(disabled) > 0 {
		v.problems.Addf("Bio risk codes not enabled: %s", describeSet(disabled))
	}

	return nil
}

// validateCellClasses resolves every entry's cell class name.
func (v *Validator) validateCellClasses(ctx context.Context, req *domain.RegistrationRequest) error {
	var names []string
	for _, entry := range req.Entries() {
		names = append(names, entry.CellClassName)
	}
	return resolveNames(ctx, v, names, "cell class", "cell classes",
		v.cellClasses, v.store.RefData().FindCellClass,
		func(cc *domain.CellClass) bool { return cc.Enabled })
}

// validateWorks requires at least one work number and resolves each to
// a currently-usable work.
func (v *Validator) validateWorks(ctx context.Context, req *domain.RegistrationRequest) error {
	var numbers []string
	seen := make(map[string]struct{})
	missing := len(req.WorkNumbers) == 0
	for _, number := range req.WorkNumbers {
		number = strings.TrimSpace(number)
		if number == "" {
			missing = true
			continue
		}
		key := upperKey(number)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		numbers = append(numbers, number)
	}

	if missing {
		v.problems.Add("Missing work number.")
	}
	if len(numbers) == 0 {
		return nil
	}

	works, err := v.store.Works().FindByWorkNumbers(ctx, numbers)
	if err != nil {
		return fmt.Errorf("finding works: %w", err)
	}
	byNumber := make(map[string]*domain.Work, len(works))
	for _, work := range works {
		byNumber[upperKey(work.WorkNumber)] = work
	}

	unknown := make(map[string]struct{})
	for _, number := range numbers {
		work := byNumber[upperKey(number)]
		if work == nil {
			unknown[number] = struct{}{}
			continue
		}
		if !work.Usable() {
			v.problems.Addf("Work %s cannot be used because it is %s.", work.WorkNumber, work.Status)
			continue
		}
		v.works = append(v.works, work)
	}
	if len(unknown) > 0 {
		v.problems.Addf("Unknown work numbers: %s", describeSet(unknown))
	}

	return nil
}
