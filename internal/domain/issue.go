package domain

import (
	"fmt"
	"strings"
)

// Severity ranks validation issues
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	// SeverityFatal aborts a persist before storage is touched
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Issue is a single validation finding
type Issue struct {
	Severity Severity
	Field    string
	Message  string
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Message)
}

// Issues is a severity tagged issue set
type Issues []Issue

// IssueReporter is the capability of extensions that validate themselves
type IssueReporter interface {
	Issues() Issues
}

// Add appends an issue
func (is *Issues) Add(severity Severity, field, message string) {
	*is = append(*is, Issue{Severity: severity, Field: field, Message: message})
}

// Addf appends an issue with a formatted message
func (is *Issues) Addf(severity Severity, field, format string, args ...any) {
	is.Add(severity, field, fmt.Sprintf(format, args...))
}

// HasFatal reports whether any issue is FATAL
func (is Issues) HasFatal() bool {
	for _, issue := range is {
		if issue.Severity >= SeverityFatal {
			return true
		}
	}
	return false
}

// WithSeverity returns the issues at exactly the given severity
func (is Issues) WithSeverity(severity Severity) Issues {
	var out Issues
	for _, issue := range is {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// ValidationError aborts a persist. It carries every issue so callers can render them inline.
type ValidationError struct {
	EntityType string
	Issues     Issues
}

func (e *ValidationError) Error() string {
	fatal := e.Issues.WithSeverity(SeverityFatal)
	messages := make([]string, len(fatal))
	for i, issue := range fatal {
		messages[i] = issue.String()
	}
	return fmt.Sprintf("validation of %s failed: %s", e.EntityType, strings.Join(messages, "; "))
}
