package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// ClashChecker detects registration requests that name new tissue whose
// external name already exists in the store. It runs before validation
// and is authoritative: any clash rejects the whole request with a
// clash report instead of a problem list.
type ClashChecker struct {
	store domain.Store
	log   *logrus.Logger
}

// NewClashChecker creates a new clash checker.
func NewClashChecker(store domain.Store, logger *logrus.Logger) *ClashChecker {
	return &ClashChecker{
		store: store,
		log:   logger,
	}
}

// FindClashes returns one clash per existing tissue whose external name
// the request marks as new, paired with every labware currently holding
// that tissue. Entries flagged as existing tissue are expected to exist
// and are excluded. Pure read; no side effects.
func (c *ClashChecker) FindClashes(ctx context.Context, req *domain.RegistrationRequest) ([]domain.Clash, error) {
	names := newTissueNames(req)
	if len(names) == 0 {
		return nil, nil
	}

	tissues, err := c.store.Tissues().FindByExternalNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("finding tissues by external names: %w", err)
	}
	if len(tissues) == 0 {
		return nil, nil
	}

	tissueIDs := make([]int, len(tissues))
	for i, tissue := range tissues {
		tissueIDs[i] = tissue.ID
	}

	labwareByTissue, err := c.store.Labware().ContainingTissues(ctx, tissueIDs)
	if err != nil {
		return nil, fmt.Errorf("finding labware containing tissues: %w", err)
	}

	clashes := make([]domain.Clash, len(tissues))
	for i, tissue := range tissues {
		clashes[i] = domain.Clash{
			Tissue:  tissue,
			Labware: labwareByTissue[tissue.ID],
		}
	}

	c.log.WithFields(logrus.Fields{
		"requested_names": len(names),
		"clashes":         len(clashes),
	}).Info("Registration request clashed with existing tissue")

	return clashes, nil
}

// newTissueNames collects the distinct external names the request
// intends to create as new tissue, in request order.
func newTissueNames(req *domain.RegistrationRequest) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, entry := range req.Entries() {
		if entry.ExistingTissue || entry.ExternalName == "" {
			continue
		}
		key := strings.ToUpper(entry.ExternalName)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, entry.ExternalName)
	}
	return names
}
