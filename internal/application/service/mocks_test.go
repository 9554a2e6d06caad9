package service

import (
	"context"
	"sync"

	"github.com/garyjia/formflow/internal/application/dispatcher"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/domain/event"
)

// Mock repositories

type mockTemplateRepo struct {
	createFunc       func(ctx context.Context, tmpl *entity.FormTemplate) error
	getByIDFunc      func(ctx context.Context, id int64) (*entity.FormTemplate, error)
	listFunc         func(ctx context.Context) ([]*entity.FormTemplate, error)
	updateFunc       func(ctx context.Context, tmpl *entity.FormTemplate) error
	isReferencedFunc func(ctx context.Context, id int64) (bool, error)
}

func (m *mockTemplateRepo) Create(ctx context.Context, tmpl *entity.FormTemplate) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, tmpl)
	}
	tmpl.ID = 1
	return nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id int64) (*entity.FormTemplate, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.FormTemplate{ID: id, Name: "Expense"}, nil
}

func (m *mockTemplateRepo) List(ctx context.Context) ([]*entity.FormTemplate, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.FormTemplate{}, nil
}

func (m *mockTemplateRepo) Update(ctx context.Context, tmpl *entity.FormTemplate) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, tmpl)
	}
	return nil
}

func (m *mockTemplateRepo) IsReferenced(ctx context.Context, id int64) (bool, error) {
	if m.isReferencedFunc != nil {
		return m.isReferencedFunc(ctx, id)
	}
	return false, nil
}

type mockDefinitionRepo struct {
	createFunc         func(ctx context.Context, def *entity.WorkflowDefinition) error
	getByIDFunc        func(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	getLatestFunc      func(ctx context.Context, formTemplateID int64) (*entity.WorkflowDefinition, error)
	listFunc           func(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	replaceFunc        func(ctx context.Context, def *entity.WorkflowDefinition) error
	hasSubmissionsFunc func(ctx context.Context, id int64) (bool, error)
}

func (m *mockDefinitionRepo) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, def)
	}
	def.ID = 1
	return nil
}

func (m *mockDefinitionRepo) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockDefinitionRepo) GetLatestForTemplate(ctx context.Context, formTemplateID int64) (*entity.WorkflowDefinition, error) {
	if m.getLatestFunc != nil {
		return m.getLatestFunc(ctx, formTemplateID)
	}
	return nil, nil
}

func (m *mockDefinitionRepo) List(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []*entity.WorkflowDefinition{}, nil
}

func (m *mockDefinitionRepo) Replace(ctx context.Context, def *entity.WorkflowDefinition) error {
	if m.replaceFunc != nil {
		return m.replaceFunc(ctx, def)
	}
	return nil
}

func (m *mockDefinitionRepo) HasSubmissions(ctx context.Context, id int64) (bool, error) {
	if m.hasSubmissionsFunc != nil {
		return m.hasSubmissionsFunc(ctx, id)
	}
	return false, nil
}

type mockSubmissionRepo struct {
	createFunc          func(ctx context.Context, sub *entity.Submission) error
	getByIDFunc         func(ctx context.Context, id int64) (*entity.Submission, error)
	listBySubmitterFunc func(ctx context.Context, submittedBy string) ([]*entity.Submission, error)
	listFunc            func(ctx context.Context, limit, offset int) ([]*entity.Submission, error)
}

func (m *mockSubmissionRepo) Create(ctx context.Context, sub *entity.Submission) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, sub)
	}
	sub.ID = 1
	sub.Version = 1
	return nil
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, id int64) (*entity.Submission, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockSubmissionRepo) ListBySubmitter(ctx context.Context, submittedBy string) ([]*entity.Submission, error) {
	if m.listBySubmitterFunc != nil {
		return m.listBySubmitterFunc(ctx, submittedBy)
	}
	return []*entity.Submission{}, nil
}

func (m *mockSubmissionRepo) ListByStates(ctx context.Context, workflowID int64, states []string) ([]*entity.Submission, error) {
	return []*entity.Submission{}, nil
}

func (m *mockSubmissionRepo) List(ctx context.Context, limit, offset int) ([]*entity.Submission, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*entity.Submission{}, nil
}

func (m *mockSubmissionRepo) CompareAndSetState(ctx context.Context, id, expectedVersion int64, newState string) (bool, error) {
	return true, nil
}

func (m *mockSubmissionRepo) BumpVersion(ctx context.Context, id, expectedVersion int64) (bool, error) {
	return true, nil
}

type mockAuditRepo struct {
	createFunc func(ctx context.Context, record *entity.TransitionRecord) error
	listFunc   func(ctx context.Context, limit, offset int) ([]*entity.TransitionRecord, error)
	records    []*entity.TransitionRecord
}

func (m *mockAuditRepo) Create(ctx context.Context, record *entity.TransitionRecord) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, record)
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockAuditRepo) ListBySubmission(ctx context.Context, submissionID int64) ([]*entity.TransitionRecord, error) {
	var out []*entity.TransitionRecord
	for _, r := range m.records {
		if r.SubmissionID == submissionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAuditRepo) List(ctx context.Context, limit, offset int) ([]*entity.TransitionRecord, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, limit, offset)
	}
	return []*entity.TransitionRecord{}, nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
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

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo { return nil }

func (m *mockDispatcher) Close() error { return nil }

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}
