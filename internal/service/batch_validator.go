package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
)

const (
	maxNameLength        = 200
	maxStudentIDLength   = 100
	maxDegreeLength      = 200
	maxInstitutionLength = 200
)

// issueDateLayouts, in resolution order. The slash form is day-first.
var issueDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"January 2, 2006",
}

// BatchValidator turns raw uploaded rows into well-formed certificate records
// before the pipeline performs any side effects.
type BatchValidator struct {
	validate *validator.Validate
	logger   *zap.Logger
}

// NewBatchValidator constructs a BatchValidator.
func NewBatchValidator(validate *validator.Validate, logger *zap.Logger) *BatchValidator {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchValidator{validate: validate, logger: logger}
}

// ParseCSV reads a header-mapped CSV into raw key-value rows. Header names are
// normalized to snake_case so "Student Name" and "student_name" are the same
// column.
func (v *BatchValidator) ParseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, appErrors.ErrNoDataRows
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable csv header")
	}
	for i := range header {
		header[i] = normalizeHeader(header[i])
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable csv row")
		}
		row := make(map[string]string, len(header))
		for i, key := range header {
			if key == "" || i >= len(record) {
				continue
			}
			row[key] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Validate checks every raw row and splits the batch into valid records and
// row-level errors. A record with zero errors is valid regardless of warnings.
// Empty input is a structural problem, distinct from "all rows invalid".
func (v *BatchValidator) Validate(rows []map[string]string) (*models.ValidationReport, error) {
	if len(rows) == 0 {
		return nil, appErrors.ErrNoDataRows
	}

	report := &models.ValidationReport{}
	seenStudentIDs := make(map[string]int)
	seenEmails := make(map[string]int)

	for i, row := range rows {
		// Row 1 is the header; data rows are 1-based from there.
		rowNum := i + 2
		var rowErrors []string

		name := row["student_name"]
		if name == "" {
			rowErrors = append(rowErrors, "student_name is required")
		} else if len(name) > maxNameLength {
			rowErrors = append(rowErrors, fmt.Sprintf("student_name exceeds %d characters", maxNameLength))
		}

		studentID := row["student_id"]
		if studentID == "" {
			rowErrors = append(rowErrors, "student_id is required")
		} else if len(studentID) > maxStudentIDLength {
			rowErrors = append(rowErrors, fmt.Sprintf("student_id exceeds %d characters", maxStudentIDLength))
		}

		degree := row["degree"]
		if degree == "" {
			rowErrors = append(rowErrors, "degree is required")
		} else if len(degree) > maxDegreeLength {
			rowErrors = append(rowErrors, fmt.Sprintf("degree exceeds %d characters", maxDegreeLength))
		}

		institution := row["institution"]
		if institution == "" {
			rowErrors = append(rowErrors, "institution is required")
		} else if len(institution) > maxInstitutionLength {
			rowErrors = append(rowErrors, fmt.Sprintf("institution exceeds %d characters", maxInstitutionLength))
		}

		var issueDate time.Time
		rawDate := row["issue_date"]
		if rawDate == "" {
			rowErrors = append(rowErrors, "issue_date is required")
		} else {
			parsed, err := parseIssueDate(rawDate)
			if err != nil {
				rowErrors = append(rowErrors, fmt.Sprintf("issue_date %q is not a recognized date", rawDate))
			} else {
				issueDate = parsed
			}
		}

		email := row["email"]
		if email != "" {
			if err := v.validate.Var(email, "email"); err != nil {
				rowErrors = append(rowErrors, fmt.Sprintf("email %q is not a valid address", email))
			}
		}

		if name != "" && looksNumeric(name) {
			report.Warnings = append(report.Warnings, models.RowWarning{
				Row:     rowNum,
				Message: fmt.Sprintf("student_name %q looks numeric", name),
			})
		}
		if studentID != "" {
			if firstRow, ok := seenStudentIDs[studentID]; ok {
				report.Warnings = append(report.Warnings, models.RowWarning{
					Row:     rowNum,
					Message: fmt.Sprintf("student_id %q duplicates row %d", studentID, firstRow),
				})
			} else {
				seenStudentIDs[studentID] = rowNum
			}
		}
		if email != "" {
			key := strings.ToLower(email)
			if firstRow, ok := seenEmails[key]; ok {
				report.Warnings = append(report.Warnings, models.RowWarning{
					Row:     rowNum,
					Message: fmt.Sprintf("email %q duplicates row %d", email, firstRow),
				})
			} else {
				seenEmails[key] = rowNum
			}
		}

		if len(rowErrors) > 0 {
			report.InvalidCount++
			report.InvalidRows = append(report.InvalidRows, models.RowError{Row: rowNum, Errors: rowErrors})
			continue
		}

		report.ValidCount++
		report.ValidRecords = append(report.ValidRecords, models.CertificateRecord{
			Row:         rowNum,
			StudentName: name,
			StudentID:   studentID,
			Degree:      degree,
			Institution: institution,
			IssueDate:   issueDate,
			Email:       email,
		})
	}

	return report, nil
}

func parseIssueDate(raw string) (time.Time, error) {
	for _, layout := range issueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

func looksNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits > 0 && digits*2 >= len(s)
}
