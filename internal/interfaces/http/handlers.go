package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/formflow/internal/application/service"
	appwf "github.com/garyjia/formflow/internal/application/workflow"
	"github.com/garyjia/formflow/internal/domain/entity"
	domainwf "github.com/garyjia/formflow/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Services bundles what the handlers call into
type Services struct {
	Templates   service.TemplateService
	Definitions service.DefinitionService
	Submissions service.SubmissionService
	Export      service.ExportService
	Engine      appwf.Engine
	Query       appwf.Query

	// Health reports component status; nil means always healthy
	Health func() (bool, interface{})
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	svc    Services
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc Services, logger Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateTemplateRequest is the body of POST /api/template
type CreateTemplateRequest struct {
	Name   string                `json:"name" binding:"required"`
	Schema entity.TemplateSchema `json:"schema"`
}

// UpdateTemplateRequest is the body of PUT /api/templates/:id
type UpdateTemplateRequest struct {
	Name   *string                `json:"name"`
	Schema *entity.TemplateSchema `json:"schema"`
}

// DefinitionRequest is the body of POST /api/workflow and PUT /api/workflows/:id
type DefinitionRequest struct {
	FormTemplateID int64               `json:"form_template_id"`
	States         []string            `json:"states" binding:"required,min=1"`
	InitialState   string              `json:"initial_state"`
	Transitions    []entity.Transition `json:"transitions"`
}

// SubmitRequest is the body of POST /api/submit-form
type SubmitRequest struct {
	FormTemplateID int64                  `json:"form_template_id" binding:"required"`
	Data           map[string]interface{} `json:"data"`
}

// TransitionBody is the body of POST /api/transition
type TransitionBody struct {
	SubmissionID  int64  `json:"submission_id" binding:"required"`
	NextState     string `json:"next_state" binding:"required"`
	ExpectedState string `json:"expected_state"`
}

// TransitionView is an available transition as seen by the caller
type TransitionView struct {
	appwf.AvailableTransition
	Actionable bool `json:"actionable"`
}

// TransitionsResponse is the body of GET /api/transitions/:submission_id
type TransitionsResponse struct {
	SubmissionID int64            `json:"submission_id"`
	CurrentState string           `json:"current_state"`
	Transitions  []TransitionView `json:"transitions"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy := true
	var components interface{}
	if h.svc.Health != nil {
		healthy, components = h.svc.Health()
	}

	resp := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{Success: healthy, Data: resp})
}

// ListTemplates handles GET /api/templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	templates, err := h.svc.Templates.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list templates", err)
		return
	}
	ok(c, http.StatusOK, templates)
}

// CreateTemplate handles POST /api/template
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if !bind(c, &req) {
		return
	}

	tmpl, err := h.svc.Templates.Create(c.Request.Context(), actorFrom(c).ID, req.Name, req.Schema)
	if err != nil {
		h.fail(c, "Failed to create template", err)
		return
	}
	ok(c, http.StatusCreated, tmpl)
}

// UpdateTemplate handles PUT /api/templates/:id
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdateTemplateRequest
	if !bind(c, &req) {
		return
	}

	tmpl, err := h.svc.Templates.Update(c.Request.Context(), id, service.TemplateUpdate{
		Name:   req.Name,
		Schema: req.Schema,
	})
	if err != nil {
		h.fail(c, "Failed to update template", err)
		return
	}
	ok(c, http.StatusOK, tmpl)
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	defs, err := h.svc.Definitions.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list workflows", err)
		return
	}
	ok(c, http.StatusOK, defs)
}

// CreateWorkflow handles POST /api/workflow
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var req DefinitionRequest
	if !bind(c, &req) {
		return
	}

	def, err := h.svc.Definitions.Create(c.Request.Context(), actorFrom(c).ID, req.input())
	if err != nil {
		h.fail(c, "Failed to create workflow", err)
		return
	}
	ok(c, http.StatusCreated, def)
}

// UpdateWorkflow handles PUT /api/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req DefinitionRequest
	if !bind(c, &req) {
		return
	}

	def, err := h.svc.Definitions.Update(c.Request.Context(), id, actorFrom(c).ID, req.input())
	if err != nil {
		h.fail(c, "Failed to update workflow", err)
		return
	}
	ok(c, http.StatusOK, def)
}

// SubmitForm handles POST /api/submit-form
func (h *Handlers) SubmitForm(c *gin.Context) {
	var req SubmitRequest
	if !bind(c, &req) {
		return
	}

	sub, err := h.svc.Submissions.Submit(c.Request.Context(), actorFrom(c), req.FormTemplateID, req.Data)
	if err != nil {
		h.fail(c, "Failed to submit form", err)
		return
	}
	ok(c, http.StatusCreated, sub)
}

// MySubmissions handles GET /api/my-submissions
func (h *Handlers) MySubmissions(c *gin.Context) {
	subs, err := h.svc.Submissions.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, "Failed to list submissions", err)
		return
	}
	ok(c, http.StatusOK, subs)
}

// GetSubmission handles GET /api/submissions/:id
func (h *Handlers) GetSubmission(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	sub, err := h.svc.Submissions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get submission", err)
		return
	}
	ok(c, http.StatusOK, sub)
}

// SubmissionHistory handles GET /api/submissions/:id/history
func (h *Handlers) SubmissionHistory(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}

	records, err := h.svc.Submissions.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get submission history", err)
		return
	}
	ok(c, http.StatusOK, records)
}

// ExportSubmissions handles GET /api/submissions/export
func (h *Handlers) ExportSubmissions(c *gin.Context) {
	filename := "submissions-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"

	// Rendered into memory first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := h.svc.Export.WriteWorkbook(c.Request.Context(), &buf); err != nil {
		h.fail(c, "Failed to export submissions", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// PendingApprovals handles GET /api/pending-approvals
func (h *Handlers) PendingApprovals(c *gin.Context) {
	subs, err := h.svc.Query.ListPendingForRoles(c.Request.Context(), actorFrom(c).Roles)
	if err != nil {
		h.fail(c, "Failed to list pending approvals", err)
		return
	}
	ok(c, http.StatusOK, subs)
}

// AvailableTransitions handles GET /api/transitions/:submission_id
func (h *Handlers) AvailableTransitions(c *gin.Context) {
	id, valid := pathID(c, "submission_id")
	if !valid {
		return
	}

	opts, err := h.svc.Query.ListAvailableTransitions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list transitions", err)
		return
	}

	roles := actorFrom(c).Roles
	views := make([]TransitionView, 0, len(opts.Transitions))
	for _, t := range opts.Transitions {
		views = append(views, TransitionView{AvailableTransition: t, Actionable: t.ActionableBy(roles)})
	}

	ok(c, http.StatusOK, TransitionsResponse{
		SubmissionID: opts.SubmissionID,
		CurrentState: opts.CurrentState,
		Transitions:  views,
	})
}

// RequestTransition handles POST /api/transition
func (h *Handlers) RequestTransition(c *gin.Context) {
	var req TransitionBody
	if !bind(c, &req) {
		return
	}

	result, err := h.svc.Engine.RequestTransition(c.Request.Context(), appwf.TransitionRequest{
		SubmissionID:  req.SubmissionID,
		ToState:       req.NextState,
		ExpectedState: req.ExpectedState,
		Actor:         actorFrom(c),
	})
	if err != nil {
		h.fail(c, "Transition rejected", err)
		return
	}

	status := http.StatusOK
	if result.Outcome == appwf.OutcomePending {
		status = http.StatusAccepted
	}
	ok(c, status, result)
}

func (r DefinitionRequest) input() service.DefinitionInput {
	return service.DefinitionInput{
		FormTemplateID: r.FormTemplateID,
		States:         r.States,
		InitialState:   r.InitialState,
		Transitions:    r.Transitions,
	}
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

// fail maps err to a status code. Unknown errors are logged and hidden.
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "path", c.Request.URL.Path)
		c.JSON(status, Response{Success: false, Error: "internal server error"})
		return
	}

	h.logger.Info(msg, "error", err.Error(), "status", status)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrInvalidDefinition),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domainwf.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
