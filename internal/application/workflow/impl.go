package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/domain/event"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	submissionRepo port.SubmissionRepository
	approvalRepo   port.ApprovalRepository
	auditRepo      port.AuditRepository
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger

	graphs *graphCache
	locks  *keyedMutex
	now    func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets a logger for the engine
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for consents and audit records
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new transition engine
func NewEngine(
	submissionRepo port.SubmissionRepository,
	definitionRepo port.DefinitionRepository,
	approvalRepo port.ApprovalRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		submissionRepo: submissionRepo,
		approvalRepo:   approvalRepo,
		auditRepo:      auditRepo,
		txManager:      txManager,
		graphs:         newGraphCache(definitionRepo),
		locks:          newKeyedMutex(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// step carries what happened inside the transaction to the event phase
type step struct {
	result      *TransitionResult
	logicalType entity.LogicalType
	added       []string
	consents    []entity.Consent
	invalidated int64
}

func (e *engineImpl) RequestTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	req.ToState = strings.TrimSpace(req.ToState)
	req.ExpectedState = strings.TrimSpace(req.ExpectedState)

	if req.SubmissionID <= 0 {
		return nil, fmt.Errorf("%w: submission %d", domainwf.ErrNotFound, req.SubmissionID)
	}
	if req.ToState == "" {
		return nil, fmt.Errorf("%w: target state is required", domainwf.ErrInvalidTransition)
	}
	if strings.TrimSpace(req.Actor.ID) == "" {
		return nil, fmt.Errorf("%w: actor identity is required", domainwf.ErrUnauthorized)
	}

	unlock := e.locks.Lock(req.SubmissionID)
	defer unlock()

	var st *step
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		st, err = e.apply(txCtx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, req, st)
	return st.result, nil
}

// apply runs inside the transaction. Every check happens before the first write.
func (e *engineImpl) apply(ctx context.Context, req TransitionRequest) (*step, error) {
	sub, err := e.submissionRepo.GetByID(ctx, req.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: submission %d", domainwf.ErrNotFound, req.SubmissionID)
	}

	if req.ExpectedState != "" && req.ExpectedState != sub.CurrentState {
		return nil, fmt.Errorf("%w: submission %d is in state %q, not %q",
			domainwf.ErrConflict, sub.ID, sub.CurrentState, req.ExpectedState)
	}

	graph, err := e.graphs.Get(ctx, sub.WorkflowID)
	if err != nil {
		return nil, err
	}

	tr, ok := graph.Lookup(sub.CurrentState, req.ToState)
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", domainwf.ErrInvalidTransition, sub.CurrentState, req.ToState)
	}

	qualifying := domainwf.Intersect(tr.AllowedRoles, domainwf.NormalizeRoles(req.Actor.Roles))
	if len(qualifying) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s requires one of %v",
			domainwf.ErrUnauthorized, tr.FromState, tr.ToState, tr.AllowedRoles)
	}

	now := e.now().UTC()

	if tr.LogicalType == entity.LogicalTypeOR {
		consents := make([]entity.Consent, 0, len(qualifying))
		for _, role := range qualifying {
			consents = append(consents, entity.Consent{Role: role, ActorID: req.Actor.ID, ConsentedAt: now})
		}
		return e.commit(ctx, sub, tr, req.Actor, consents, now)
	}

	pending, err := e.approvalRepo.Get(ctx, sub.ID, tr.FromState, tr.ToState)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approval: %w", err)
	}
	if pending == nil {
		pending = &entity.PendingApproval{SubmissionID: sub.ID, FromState: tr.FromState, ToState: tr.ToState}
	}

	var added []string
	for _, role := range qualifying {
		if pending.HasRole(role) {
			continue
		}
		consent := entity.Consent{Role: role, ActorID: req.Actor.ID, ConsentedAt: now}
		if err := e.approvalRepo.AddConsent(ctx, sub.ID, tr.FromState, tr.ToState, consent); err != nil {
			return nil, fmt.Errorf("failed to record consent: %w", err)
		}
		pending.Consents = append(pending.Consents, consent)
		added = append(added, role)
	}

	if domainwf.Satisfied(tr, pending) {
		return e.commit(ctx, sub, tr, req.Actor, pending.Consents, now)
	}

	// A consent is an engine write too; it must not land on a moved submission.
	if len(added) > 0 {
		ok, err := e.submissionRepo.BumpVersion(ctx, sub.ID, sub.Version)
		if err != nil {
			return nil, fmt.Errorf("failed to bump submission version: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: submission %d changed concurrently", domainwf.ErrConflict, sub.ID)
		}
	}

	consented, remaining := domainwf.Progress(tr, pending)
	return &step{
		result: &TransitionResult{
			Outcome:        OutcomePending,
			SubmissionID:   sub.ID,
			FromState:      tr.FromState,
			ToState:        tr.ToState,
			CurrentState:   sub.CurrentState,
			ConsentedRoles: consented,
			RemainingRoles: remaining,
		},
		logicalType: tr.LogicalType,
		added:       added,
		consents:    pending.Consents,
	}, nil
}

func (e *engineImpl) commit(
	ctx context.Context,
	sub *entity.Submission,
	tr entity.Transition,
	actor Actor,
	consents []entity.Consent,
	now time.Time,
) (*step, error) {
	ok, err := e.submissionRepo.CompareAndSetState(ctx, sub.ID, sub.Version, tr.ToState)
	if err != nil {
		return nil, fmt.Errorf("failed to update submission state: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: submission %d changed concurrently", domainwf.ErrConflict, sub.ID)
	}

	deleted, err := e.approvalRepo.DeleteFromState(ctx, sub.ID, tr.FromState)
	if err != nil {
		return nil, fmt.Errorf("failed to clear pending approvals: %w", err)
	}

	record := &entity.TransitionRecord{
		SubmissionID: sub.ID,
		Action:       entity.ActionTransition,
		FromState:    tr.FromState,
		ToState:      tr.ToState,
		LogicalType:  tr.LogicalType,
		ActorID:      actor.ID,
		ActorRoles:   domainwf.NormalizeRoles(actor.Roles),
		Consents:     consents,
		CreatedAt:    now,
	}
	if err := e.auditRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create audit record: %w", err)
	}

	// The committed AND attempt's own ledger entry is not an invalidation.
	invalidated := deleted
	if tr.LogicalType == entity.LogicalTypeAND && deleted > 0 {
		invalidated--
	}

	roles := make([]string, 0, len(consents))
	for _, c := range consents {
		roles = append(roles, c.Role)
	}

	return &step{
		result: &TransitionResult{
			Outcome:        OutcomeCommitted,
			SubmissionID:   sub.ID,
			FromState:      tr.FromState,
			ToState:        tr.ToState,
			CurrentState:   tr.ToState,
			ConsentedRoles: roles,
			RemainingRoles: []string{},
		},
		logicalType: tr.LogicalType,
		consents:    consents,
		invalidated: invalidated,
	}, nil
}

func (e *engineImpl) publish(ctx context.Context, req TransitionRequest, st *step) {
	res := st.result

	switch res.Outcome {
	case OutcomeCommitted:
		if e.logger != nil {
			e.logger.Info("Transition committed",
				"submission_id", res.SubmissionID,
				"from_state", res.FromState,
				"to_state", res.ToState,
				"actor_id", req.Actor.ID,
			)
		}
		e.dispatch(ctx, event.TypeTransitionCommitted, res.SubmissionID, map[string]interface{}{
			"from_state":   res.FromState,
			"to_state":     res.ToState,
			"logical_type": st.logicalType.String(),
			"actor_id":     req.Actor.ID,
			"roles":        res.ConsentedRoles,
		})
		if st.invalidated > 0 {
			e.dispatch(ctx, event.TypeApprovalInvalidated, res.SubmissionID, map[string]interface{}{
				"from_state": res.FromState,
				"count":      st.invalidated,
			})
		}

	case OutcomePending:
		if len(st.added) == 0 {
			return
		}
		if e.logger != nil {
			e.logger.Info("Consent recorded",
				"submission_id", res.SubmissionID,
				"from_state", res.FromState,
				"to_state", res.ToState,
				"roles", st.added,
				"remaining", res.RemainingRoles,
			)
		}
		e.dispatch(ctx, event.TypeConsentRecorded, res.SubmissionID, map[string]interface{}{
			"from_state": res.FromState,
			"to_state":   res.ToState,
			"actor_id":   req.Actor.ID,
			"roles":      st.added,
			"remaining":  res.RemainingRoles,
		})
	}
}

func (e *engineImpl) dispatch(ctx context.Context, t event.Type, submissionID int64, payload map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, event.FromContext(ctx, t, submissionID, payload))
}
