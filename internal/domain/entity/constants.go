package entity

// Field type constants for FieldDescriptor
const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
)

// Logical type constants for Transition
const (
	LogicalTypeOR  LogicalType = "OR"  // any one allowed role commits
	LogicalTypeAND LogicalType = "AND" // every allowed role must consent
)

// Audit action constants for TransitionRecord
const (
	ActionSubmit     = "SUBMIT"
	ActionTransition = "TRANSITION"
)
