package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/formflow/internal/application/port"
	"github.com/garyjia/formflow/internal/domain/entity"
)

const (
	SheetSubmissions = "Submissions"
	SheetTransitions = "Transitions"

	exportPageSize = 500
)

// ExportService writes submissions and their audit trail as an xlsx workbook
type ExportService interface {
	WriteWorkbook(ctx context.Context, w io.Writer) error
}

type exportServiceImpl struct {
	templateRepo   port.TemplateRepository
	submissionRepo port.SubmissionRepository
	auditRepo      port.AuditRepository
	logger         Logger
}

// NewExportService creates a new ExportService
func NewExportService(
	templateRepo port.TemplateRepository,
	submissionRepo port.SubmissionRepository,
	auditRepo port.AuditRepository,
	logger Logger,
) ExportService {
	return &exportServiceImpl{
		templateRepo:   templateRepo,
		submissionRepo: submissionRepo,
		auditRepo:      auditRepo,
		logger:         orNop(logger),
	}
}

func (s *exportServiceImpl) WriteWorkbook(ctx context.Context, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Error("Failed to close workbook", "error", err)
		}
	}()

	templates, err := s.templateRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	names := make(map[int64]string, len(templates))
	for _, t := range templates {
		names[t.ID] = t.Name
	}

	subCount, err := s.writeSubmissions(ctx, f, names)
	if err != nil {
		return err
	}
	recCount, err := s.writeTransitions(ctx, f)
	if err != nil {
		return err
	}

	// NewFile starts with Sheet1, which the export does not use.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetSubmissions); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		s.logger.Error("Failed to write workbook", "error", err)
		return fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("Workbook exported", "submissions", subCount, "transitions", recCount)
	return nil
}

func (s *exportServiceImpl) writeSubmissions(ctx context.Context, f *excelize.File, names map[int64]string) (int, error) {
	if _, err := f.NewSheet(SheetSubmissions); err != nil {
		return 0, fmt.Errorf("create sheet %s: %w", SheetSubmissions, err)
	}

	header := []interface{}{
		"ID", "Form Template", "Workflow", "Submitted By", "Current State",
		"Version", "Submitted At", "Updated At", "Data",
	}
	if err := setRow(f, SheetSubmissions, 1, header); err != nil {
		return 0, err
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		page, err := s.submissionRepo.List(ctx, exportPageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("list submissions: %w", err)
		}

		for _, sub := range page {
			data, err := json.Marshal(sub.Data)
			if err != nil {
				return 0, fmt.Errorf("encode submission %d data: %w", sub.ID, err)
			}
			values := []interface{}{
				sub.ID,
				names[sub.FormTemplateID],
				sub.WorkflowID,
				sub.SubmittedBy,
				sub.CurrentState,
				sub.Version,
				formatTime(sub.SubmittedAt),
				formatTime(sub.UpdatedAt),
				string(data),
			}
			if err := setRow(f, SheetSubmissions, row, values); err != nil {
				return 0, err
			}
			row++
		}

		if len(page) < exportPageSize {
			break
		}
	}

	return row - 2, nil
}

func (s *exportServiceImpl) writeTransitions(ctx context.Context, f *excelize.File) (int, error) {
	if _, err := f.NewSheet(SheetTransitions); err != nil {
		return 0, fmt.Errorf("create sheet %s: %w", SheetTransitions, err)
	}

	header := []interface{}{
		"ID", "Submission", "Action", "From", "To", "Logical Type",
		"Actor", "Actor Roles", "Consents", "Created At",
	}
	if err := setRow(f, SheetTransitions, 1, header); err != nil {
		return 0, err
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		page, err := s.auditRepo.List(ctx, exportPageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("list audit records: %w", err)
		}

		for _, rec := range page {
			values := []interface{}{
				rec.ID,
				rec.SubmissionID,
				rec.Action,
				rec.FromState,
				rec.ToState,
				rec.LogicalType.String(),
				rec.ActorID,
				strings.Join(rec.ActorRoles, ", "),
				formatConsents(rec.Consents),
				formatTime(rec.CreatedAt),
			}
			if err := setRow(f, SheetTransitions, row, values); err != nil {
				return 0, err
			}
			row++
		}

		if len(page) < exportPageSize {
			break
		}
	}

	return row - 2, nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// formatConsents renders "Role:actor" pairs
func formatConsents(consents []entity.Consent) string {
	parts := make([]string, 0, len(consents))
	for _, c := range consents {
		parts = append(parts, c.Role+":"+c.ActorID)
	}
	return strings.Join(parts, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
