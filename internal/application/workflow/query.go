package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

type queryImpl struct {
	submissionRepo port.SubmissionRepository
	definitionRepo port.DefinitionRepository
	approvalRepo   port.ApprovalRepository
	graphs         *graphCache
}

// NewQuery creates the read-only query surface
func NewQuery(
	submissionRepo port.SubmissionRepository,
	definitionRepo port.DefinitionRepository,
	approvalRepo port.ApprovalRepository,
) Query {
	return &queryImpl{
		submissionRepo: submissionRepo,
		definitionRepo: definitionRepo,
		approvalRepo:   approvalRepo,
		graphs:         newGraphCache(definitionRepo),
	}
}

func (q *queryImpl) ListAvailableTransitions(ctx context.Context, submissionID int64) (*TransitionOptions, error) {
	sub, err := q.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: submission %d", domainwf.ErrNotFound, submissionID)
	}

	graph, err := q.graphs.Get(ctx, sub.WorkflowID)
	if err != nil {
		return nil, err
	}

	ledger, err := q.ledgerFor(ctx, sub)
	if err != nil {
		return nil, err
	}

	outgoing := graph.Outgoing(sub.CurrentState)
	opts := &TransitionOptions{
		SubmissionID: sub.ID,
		CurrentState: sub.CurrentState,
		Transitions:  make([]AvailableTransition, 0, len(outgoing)),
	}
	for _, tr := range outgoing {
		pending := ledger[tr.ToState]
		consented, remaining := domainwf.Progress(tr, pending)

		consents := []entity.Consent{}
		if pending != nil {
			for _, c := range pending.Consents {
				if domainwf.ContainsRole(tr.AllowedRoles, c.Role) {
					consents = append(consents, c)
				}
			}
		}

		opts.Transitions = append(opts.Transitions, AvailableTransition{
			Transition:     tr,
			Consents:       consents,
			ConsentedRoles: consented,
			RemainingRoles: remaining,
		})
	}

	return opts, nil
}

func (q *queryImpl) ListPendingForRole(ctx context.Context, role string) ([]*entity.Submission, error) {
	return q.ListPendingForRoles(ctx, []string{role})
}

func (q *queryImpl) ListPendingForRoles(ctx context.Context, roles []string) ([]*entity.Submission, error) {
	roles = domainwf.NormalizeRoles(roles)
	if len(roles) == 0 {
		return []*entity.Submission{}, nil
	}

	defs, err := q.definitionRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	seen := make(map[int64]struct{})
	result := []*entity.Submission{}

	for _, def := range defs {
		// Definitions without submissions may still be edited, so build the
		// graph from the row just read instead of the cache.
		graph, err := domainwf.NewGraph(def)
		if err != nil {
			return nil, fmt.Errorf("stored workflow definition %d is unusable: %v", def.ID, err)
		}

		states := statesForRoles(graph, roles)
		if len(states) == 0 {
			continue
		}

		subs, err := q.submissionRepo.ListByStates(ctx, def.ID, states)
		if err != nil {
			return nil, fmt.Errorf("failed to list submissions: %w", err)
		}

		for _, sub := range subs {
			if _, dup := seen[sub.ID]; dup {
				continue
			}

			ledger, err := q.ledgerFor(ctx, sub)
			if err != nil {
				return nil, err
			}

			if needsAction(graph.Outgoing(sub.CurrentState), ledger, roles) {
				seen[sub.ID] = struct{}{}
				result = append(result, sub)
			}
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[j].SubmittedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// ledgerFor returns the open approvals of the current state keyed by target state
func (q *queryImpl) ledgerFor(ctx context.Context, sub *entity.Submission) (map[string]*entity.PendingApproval, error) {
	entries, err := q.approvalRepo.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}

	ledger := make(map[string]*entity.PendingApproval, len(entries))
	for _, p := range entries {
		if p.FromState == sub.CurrentState {
			ledger[p.ToState] = p
		}
	}
	return ledger, nil
}

func statesForRoles(graph *domainwf.Graph, roles []string) []string {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, s := range graph.StatesForRole(role) {
			set[s] = struct{}{}
		}
	}

	states := make([]string, 0, len(set))
	for s := range set {
		states = append(states, s)
	}
	sort.Strings(states)
	return states
}

// needsAction reports whether any held role can still act on an outgoing
// transition. OR transitions always count; AND transitions only while the
// role has not consented.
func needsAction(outgoing []entity.Transition, ledger map[string]*entity.PendingApproval, roles []string) bool {
	for _, tr := range outgoing {
		for _, role := range domainwf.Intersect(tr.AllowedRoles, roles) {
			if tr.LogicalType == entity.LogicalTypeOR {
				return true
			}
			if !ledger[tr.ToState].HasRole(role) {
				return true
			}
		}
	}
	return false
}
