package entity

import "time"

// Submission is one filled instance of a form template moving through a workflow
type Submission struct {
	ID             int64                  `json:"id"`
	FormTemplateID int64                  `json:"form_template_id"`
	WorkflowID     int64                  `json:"workflow_id"`
	Data           map[string]interface{} `json:"data"`
	SubmittedBy    string                 `json:"submitted_by"`
	CurrentState   string                 `json:"current_state"`
	Version        int64                  `json:"version"`
	SubmittedAt    time.Time              `json:"submitted_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}
