package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/specimen-registry-server/internal/auditlog"
	"github.com/specimen-registry-server/internal/domain"
)

// RegistrationOutcome is the result of one registration call. Exactly
// one of Result, Clashes or Problems is populated; the three response
// shapes are mutually exclusive.
type RegistrationOutcome struct {
	Result   *domain.RegistrationResult `json:"result,omitempty"`
	Clashes  []domain.Clash             `json:"clashes,omitempty"`
	Problems []string                   `json:"problems,omitempty"`
}

// RegistrationService runs the clash-check / validate / create pipeline
// for specimen registration. It holds no state across calls; each call
// builds its own validator with request-local caches.
type RegistrationService struct {
	store domain.Store
	log   *logrus.Logger
	audit auditlog.Recorder
}

// NewRegistrationService creates a registration service. The audit
// recorder may be nil; journaling is best-effort either way.
func NewRegistrationService(store domain.Store, logger *logrus.Logger, audit auditlog.Recorder) *RegistrationService {
	return &RegistrationService{
		store: store,
		log:   logger,
		audit: audit,
	}
}

// RegisterBlocks registers tissue blocks.
func (s *RegistrationService) RegisterBlocks(ctx context.Context, username string, req *domain.BlockRegisterRequest) (*RegistrationOutcome, error) {
	return s.register(ctx, username, req.Normalize())
}

// RegisterOriginalSamples registers original samples.
func (s *RegistrationService) RegisterOriginalSamples(ctx context.Context, username string, req *domain.OriginalSampleRegisterRequest) (*RegistrationOutcome, error) {
	return s.register(ctx, username, req.Normalize())
}

// RegisterSections registers tissue sections.
func (s *RegistrationService) RegisterSections(ctx context.Context, username string, req *domain.SectionRegisterRequest) (*RegistrationOutcome, error) {
	return s.register(ctx, username, req.Normalize())
}

func (s *RegistrationService) register(ctx context.Context, username string, req *domain.RegistrationRequest) (*RegistrationOutcome, error) {
	logger := s.log.WithFields(logrus.Fields{
		"user":    username,
		"kind":    req.Kind,
		"labware": len(req.Labware),
	})

	// An empty request is a no-op success; neither the clash checker
	// nor the validator is consulted.
	if req.Empty() {
		logger.Info("Empty registration request")
		s.journal(ctx, username, req, auditlog.OutcomeEmpty, nil)
		return &RegistrationOutcome{Result: &domain.RegistrationResult{}}, nil
	}

	clashChecker := NewClashChecker(s.store, s.log)
	clashes, err := clashChecker.FindClashes(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("checking for clashes: %w", err)
	}
	if len(clashes) > 0 {
		s.journal(ctx, username, req, auditlog.OutcomeClash, nil)
		return &RegistrationOutcome{Clashes: clashes}, nil
	}

	validator := NewValidator(s.store, s.log)
	problems, err := validator.Validate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("validating registration: %w", err)
	}
	if len(problems) > 0 {
		logger.WithField("problems", len(problems)).Info("Registration rejected")
		s.journal(ctx, username, req, auditlog.OutcomeRejected, problems)
		return &RegistrationOutcome{Problems: problems}, nil
	}

	var result *domain.RegistrationResult
	err = s.store.Transact(ctx, func(txStore domain.Store) error {
		o := &orchestrator{
			store:     txStore,
			log:       s.log,
			validator: validator,
			req:       req,
			user:      username,
		}
		var createErr error
		result, createErr = o.create(ctx)
		return createErr
	})
	if err != nil {
		// Includes the losing side of a uniqueness race: the store's
		// constraint fired after validation passed. The transaction has
		// already been rolled back; nothing partial is observable.
		s.journal(ctx, username, req, auditlog.OutcomeError, nil)
		return nil, fmt.Errorf("creating registration: %w", err)
	}

	s.journal(ctx, username, req, auditlog.OutcomeRegistered, nil)
	return &RegistrationOutcome{Result: result}, nil
}

// journal appends the attempt to the audit journal. Best-effort: a
// journal failure never fails a registration.
func (s *RegistrationService) journal(ctx context.Context, username string, req *domain.RegistrationRequest, outcome auditlog.Outcome, problems []string) {
	if s.audit == nil {
		return
	}
	entry := &auditlog.Entry{
		Username:     username,
		Kind:         string(req.Kind),
		LabwareCount: len(req.Labware),
		Outcome:      outcome,
		Problems:     problems,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.WithError(err).Warn("Failed to journal registration attempt")
	}
}
