package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe matches the unquoted identifiers accepted in generated SQL.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidationError represents a table definition error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of table validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors joined into one error, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid table definition: %s", strings.Join(msgs, "; "))
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateTable validates a single table definition. Identifiers must be
// plain (they are concatenated unquoted), column names unique and type text
// non-empty. A primary key declared among the columns without a PRIMARY KEY
// constraint only yields a warning, since the type text is not parsed.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}

	if !identifierRe.MatchString(t.Name) {
		result.Errors = append(result.Errors, &ValidationError{
			Table:   t.Name,
			Message: "invalid table name",
		})
	}
	if t.PrimaryKey != "" && !identifierRe.MatchString(t.PrimaryKey) {
		result.Errors = append(result.Errors, &ValidationError{
			Table:   t.Name,
			Column:  t.PrimaryKey,
			Message: "invalid primary key name",
		})
	}
	if len(t.Columns) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "table has no columns besides the generated primary key",
		})
	}

	// Check for duplicate column names
	colNames := make(map[string]bool)
	for i, c := range t.Columns {
		if c == nil {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: fmt.Sprintf("column %d is nil", i),
			})
			continue
		}
		if !identifierRe.MatchString(c.Name) {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "invalid column name",
			})
		}
		if strings.TrimSpace(c.Type) == "" {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "missing column type",
			})
		}
		if colNames[c.Name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "duplicate column name",
			})
		}
		colNames[c.Name] = true
	}

	if pk := Lookup(t.Columns, t.PrimaryKey); pk != nil &&
		!strings.Contains(strings.ToUpper(pk.Type), "PRIMARY KEY") {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Column:  pk.Name,
			Message: "primary key column declared without PRIMARY KEY constraint",
		})
	}

	return result
}
