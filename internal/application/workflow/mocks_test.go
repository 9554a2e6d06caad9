package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/domain/event"
)

// Mock implementations

type mockSubmissionRepo struct {
	mu     sync.Mutex
	subs   map[int64]*entity.Submission
	getErr error
	casErr error
}

func newMockSubmissionRepo(subs ...*entity.Submission) *mockSubmissionRepo {
	m := &mockSubmissionRepo{subs: make(map[int64]*entity.Submission)}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return m
}

func (m *mockSubmissionRepo) Create(ctx context.Context, sub *entity.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = int64(len(m.subs) + 1)
	m.subs[sub.ID] = sub
	return nil
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, id int64) (*entity.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	sub, ok := m.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (m *mockSubmissionRepo) ListBySubmitter(ctx context.Context, submittedBy string) ([]*entity.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Submission
	for _, s := range m.sorted() {
		if s.SubmittedBy == submittedBy {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) ListByStates(ctx context.Context, workflowID int64, states []string) ([]*entity.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Submission
	for _, s := range m.sorted() {
		if s.WorkflowID != workflowID {
			continue
		}
		for _, st := range states {
			if s.CurrentState == st {
				cp := *s
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) List(ctx context.Context, limit, offset int) ([]*entity.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *mockSubmissionRepo) CompareAndSetState(ctx context.Context, id, expectedVersion int64, newState string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casErr != nil {
		return false, m.casErr
	}
	sub, ok := m.subs[id]
	if !ok || sub.Version != expectedVersion {
		return false, nil
	}
	sub.CurrentState = newState
	sub.Version++
	return true, nil
}

func (m *mockSubmissionRepo) BumpVersion(ctx context.Context, id, expectedVersion int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok || sub.Version != expectedVersion {
		return false, nil
	}
	sub.Version++
	return true, nil
}

func (m *mockSubmissionRepo) state(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id].CurrentState
}

func (m *mockSubmissionRepo) sorted() []*entity.Submission {
	out := make([]*entity.Submission, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type mockDefinitionRepo struct {
	mu   sync.Mutex
	defs map[int64]*entity.WorkflowDefinition
	gets int
}

func newMockDefinitionRepo(defs ...*entity.WorkflowDefinition) *mockDefinitionRepo {
	m := &mockDefinitionRepo{defs: make(map[int64]*entity.WorkflowDefinition)}
	for _, d := range defs {
		m.defs[d.ID] = d
	}
	return m
}

func (m *mockDefinitionRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.ID] = def
	return nil
}

func (m *mockDefinitionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	def, ok := m.defs[id]
	if !ok {
		return nil, nil
	}
	return def, nil
}

func (m *mockDefinitionRepo) GetLatestForTemplate(ctx context.Context, formTemplateID int64) (*entity.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *entity.WorkflowDefinition
	for _, d := range m.defs {
		if d.FormTemplateID == formTemplateID && (latest == nil || d.Version > latest.Version) {
			latest = d
		}
	}
	return latest, nil
}

func (m *mockDefinitionRepo) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.WorkflowDefinition, 0, len(m.defs))
	for _, d := range m.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockDefinitionRepo) Replace(ctx context.Context, def *entity.WorkflowDefinition) error {
	return m.Create(ctx, def)
}

func (m *mockDefinitionRepo) HasSubmissions(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (m *mockDefinitionRepo) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

type approvalKey struct {
	submissionID int64
	from, to     string
}

type mockApprovalRepo struct {
	mu      sync.Mutex
	entries map[approvalKey]*entity.PendingApproval
	addErr  error
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{entries: make(map[approvalKey]*entity.PendingApproval)}
}

func (m *mockApprovalRepo) Get(ctx context.Context, submissionID int64, fromState, toState string) (*entity.PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[approvalKey{submissionID, fromState, toState}]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Consents = append([]entity.Consent{}, p.Consents...)
	return &cp, nil
}

func (m *mockApprovalRepo) ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PendingApproval
	for k, p := range m.entries {
		if k.submissionID == submissionID {
			cp := *p
			cp.Consents = append([]entity.Consent{}, p.Consents...)
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockApprovalRepo) AddConsent(ctx context.Context, submissionID int64, fromState, toState string, consent entity.Consent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	key := approvalKey{submissionID, fromState, toState}
	p, ok := m.entries[key]
	if !ok {
		p = &entity.PendingApproval{SubmissionID: submissionID, FromState: fromState, ToState: toState}
		m.entries[key] = p
	}
	if !p.HasRole(consent.Role) {
		p.Consents = append(p.Consents, consent)
	}
	return nil
}

func (m *mockApprovalRepo) DeleteFromState(ctx context.Context, submissionID int64, fromState string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.entries {
		if k.submissionID == submissionID && k.from == fromState {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *mockApprovalRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type mockAuditRepo struct {
	mu      sync.Mutex
	records []*entity.TransitionRecord
}

func (m *mockAuditRepo) Create(ctx context.Context, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockAuditRepo) ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TransitionRecord
	for _, r := range m.records {
		if r.SubmissionID == submissionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit, offset int) ([]*entity.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.TransitionRecord{}, m.records...), nil
}

func (m *mockAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockTxManager struct {
	mu        sync.Mutex
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	// Serialize like a BEGIN IMMEDIATE transaction would.
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeAll(name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
