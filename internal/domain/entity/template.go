package entity

import "time"

// FieldType is the value type of a single form field
type FieldType string

// IsValid reports whether the field type is one of the supported kinds
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate:
		return true
	default:
		return false
	}
}

// FieldDescriptor describes one field of a form
type FieldDescriptor struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// TemplateSchema is the ordered field list of a form template
type TemplateSchema struct {
	Fields []FieldDescriptor `json:"fields"`
}

// FormTemplate represents a reusable data-entry form
type FormTemplate struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Schema    TemplateSchema `json:"schema"`
	CreatedBy string         `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}
