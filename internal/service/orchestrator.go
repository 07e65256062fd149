package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/domain"
)

// orchestrator performs the all-or-nothing creation step for one
// validated request. Its precondition is a validator with zero problems
// and a clash-free request; violating that is a programming fault
// (domain.ErrPrecondition), never a user-facing problem. The caller
// supplies a transaction-bound store, so any persistence failure rolls
// the whole entity graph back.
type orchestrator struct {
	store     domain.Store
	log       *logrus.Logger
	validator *Validator
	req       *domain.RegistrationRequest
	user      string
}

func (o *orchestrator) create(ctx context.Context) (*domain.RegistrationResult, error) {
	if !o.validator.OK() {
		return nil, domain.Preconditionf("creation invoked with %d validation problems", len(o.validator.Problems()))
	}

	if err := o.createDonors(ctx); err != nil {
		return nil, err
	}
	if err := o.createTissues(ctx); err != nil {
		return nil, err
	}

	bioState, err := o.resolveBioState(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.RegistrationResult{}
	var operationIDs []int
	var bioRiskLinks []domain.SampleBioRisk

	for i := range o.req.Labware {
		item := &o.req.Labware[i]
		labware, operation, links, err := o.createLabware(ctx, item, bioState)
		if err != nil {
			return nil, err
		}
		result.Labware = append(result.Labware, *labware)
		result.Operations = append(result.Operations, *operation)
		operationIDs = append(operationIDs, operation.ID)
		bioRiskLinks = append(bioRiskLinks, links...)
	}

	if len(bioRiskLinks) > 0 {
		if err := o.store.Operations().LinkBioRisks(ctx, bioRiskLinks); err != nil {
			return nil, fmt.Errorf("linking bio risks: %w", err)
		}
	}

	if works := o.validator.UsableWorks(); len(works) > 0 {
		workIDs := make([]int, len(works))
		for i, work := range works {
			workIDs[i] = work.ID
		}
		if err := o.store.Works().LinkOperations(ctx, workIDs, operationIDs); err != nil {
			return nil, fmt.Errorf("linking works: %w", err)
		}
	}

	o.log.WithFields(logrus.Fields{
		"user":       o.user,
		"labware":    len(result.Labware),
		"operations": len(result.Operations),
	}).Info("Registration created")

	return result, nil
}

// createDonors persists every donor the validator synthesized; donors
// it resolved from the store are reused as-is.
func (o *orchestrator) createDonors(ctx context.Context) error {
	for _, donor := range o.validator.Donors() {
		if donor.Persisted() {
			continue
		}
		if donor.Species == nil || !donor.LifeStage.Valid() {
			return domain.Preconditionf("unvalidated donor %q reached creation", donor.DonorName)
		}
		if err := o.store.Donors().Create(ctx, donor); err != nil {
			return fmt.Errorf("creating donor %q: %w", donor.DonorName, err)
		}
	}
	return nil
}

// createTissues persists every synthesized tissue and applies the one
// mutation existing tissue may receive: backfilling an absent
// collection date from the request.
func (o *orchestrator) createTissues(ctx context.Context) error {
	for _, tissue := range o.validator.Tissues() {
		if tissue.Persisted() {
			if tissue.CollectionDate == nil {
				if date := o.validator.CollectionDate(tissue.ExternalName); date != nil {
					if err := o.store.Tissues().UpdateCollectionDate(ctx, tissue.ID, *date); err != nil {
						return fmt.Errorf("backfilling collection date for tissue %q: %w", tissue.ExternalName, err)
					}
					tissue.CollectionDate = date
				}
			}
			continue
		}

		if tissue.Donor == nil || !tissue.Donor.Persisted() {
			return domain.Preconditionf("tissue %q has no persisted donor", tissue.ExternalName)
		}
		if tissue.TissueType == nil || tissue.SpatialLocation == nil ||
			tissue.Medium == nil || tissue.Fixative == nil || tissue.CellClass == nil {
			return domain.Preconditionf("unvalidated tissue %q reached creation", tissue.ExternalName)
		}
		// Validation already enforced the HuMFre rule; finding it
		// violated here means a precondition slipped.
		requires := tissue.Donor.Species != nil && tissue.Donor.Species.RequiresHmdmc && tissue.CellClass.RequiresHmdmc
		if requires && tissue.Hmdmc == nil {
			return domain.Preconditionf("tissue %q requires a HuMFre number", tissue.ExternalName)
		}
		if tissue.Donor.Species != nil && !tissue.Donor.Species.RequiresHmdmc && tissue.Hmdmc != nil {
			return domain.Preconditionf("tissue %q must not have a HuMFre number", tissue.ExternalName)
		}

		if err := o.store.Tissues().Create(ctx, tissue); err != nil {
			return fmt.Errorf("creating tissue %q: %w", tissue.ExternalName, err)
		}
	}
	return nil
}

// resolveBioState returns the bio state for the request flavor.
func (o *orchestrator) resolveBioState(ctx context.Context) (*domain.BioState, error) {
	name := domain.BioStateTissue
	if o.req.Kind == domain.OriginalSampleRegistration {
		name = domain.BioStateOriginalSample
	}
	bioState, err := o.store.RefData().FindBioState(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("finding bio state %q: %w", name, err)
	}
	if bioState == nil {
		return nil, domain.Preconditionf("bio state %q is not defined", name)
	}
	return bioState, nil
}

// createLabware creates one labware with its samples and placements,
// and records the Register operation whose actions are the in-place
// placements just made.
func (o *orchestrator) createLabware(ctx context.Context, item *domain.LabwareItem, bioState *domain.BioState) (*domain.Labware, *domain.Operation, []domain.SampleBioRisk, error) {
	labwareType := o.validator.LabwareType(item.LabwareTypeName)
	if labwareType == nil {
		return nil, nil, nil, domain.Preconditionf("unresolved labware type %q", item.LabwareTypeName)
	}

	labware, err := o.store.Labware().Create(ctx, labwareType, item.ExternalBarcode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating labware of type %q: %w", labwareType.Name, err)
	}

	var actions []domain.Action
	type sampleRisk struct {
		sampleID  int
		bioRiskID int
	}
	var risks []sampleRisk

	for i := range item.Entries {
		entry := &item.Entries[i]
		tissue := o.validator.Tissue(entry.ExternalName)
		if !tissue.Persisted() {
			return nil, nil, nil, domain.Preconditionf("tissue %q was not persisted before placement", entry.ExternalName)
		}
		bioRisk := o.validator.BioRisk(entry.BioRiskCode)
		if bioRisk == nil {
			return nil, nil, nil, domain.Preconditionf("unresolved bio risk %q", entry.BioRiskCode)
		}

		sample := &domain.Sample{
			Tissue:   tissue,
			BioState: bioState,
			Section:  entry.SectionNumber,
		}
		if err := o.store.Samples().Create(ctx, sample); err != nil {
			return nil, nil, nil, fmt.Errorf("creating sample for tissue %q: %w", tissue.ExternalName, err)
		}
		risks = append(risks, sampleRisk{sampleID: sample.ID, bioRiskID: bioRisk.ID})

		// A block may legitimately occupy several addresses in one
		// container; each placement becomes one action.
		for _, raw := range entry.Addresses {
			address, err := domain.ParseAddress(raw)
			if err != nil {
				return nil, nil, nil, domain.Preconditionf("unvalidated address %q", raw)
			}
			slot := labware.Slot(address)
			if slot == nil {
				return nil, nil, nil, domain.Preconditionf("labware %s has no slot %s", labware.Barcode, address)
			}
			if err := o.store.Labware().PlaceSample(ctx, slot.ID, sample.ID); err != nil {
				return nil, nil, nil, fmt.Errorf("placing sample in slot %s of %s: %w", address, labware.Barcode, err)
			}
			slot.Samples = append(slot.Samples, *sample)
			actions = append(actions, domain.Action{
				SourceSlot: slot.ID,
				DestSlot:   slot.ID,
				SampleID:   sample.ID,
			})
		}
	}

	operation, err := o.store.Operations().Create(ctx, domain.OperationTypeRegister, o.user, actions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("recording register operation: %w", err)
	}

	links := make([]domain.SampleBioRisk, len(risks))
	for i, r := range risks {
		links[i] = domain.SampleBioRisk{
			SampleID:    r.sampleID,
			BioRiskID:   r.bioRiskID,
			OperationID: operation.ID,
		}
	}

	return labware, operation, links, nil
}
