package validator

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rpattn/entitystore/internal/domain"
)

// MaxDescriptionLength is the description length in runes above which a warning is raised
const MaxDescriptionLength = 4096

// Validate collects every issue of e as an entity of type t. Type hooks and
// extensions implementing domain.IssueReporter contribute their own issues.
func Validate(e domain.Entity, t domain.EntityType) domain.Issues {
	var issues domain.Issues

	if e.ID == uuid.Nil {
		issues.Add(domain.SeverityFatal, "id", "entity has no identifier")
	}
	if e.Type != t.Name {
		issues.Addf(domain.SeverityFatal, "type", "entity type %q does not match %q", e.Type, t.Name)
	}
	if e.ParentID != nil && *e.ParentID == e.ID {
		issues.Add(domain.SeverityFatal, "parentId", "entity cannot be its own parent")
	}
	if strings.TrimSpace(e.Name) == "" {
		issues.Add(domain.SeverityFatal, "name", "name is required")
	}
	if n := utf8.RuneCountInString(e.Description); n > MaxDescriptionLength {
		issues.Addf(domain.SeverityWarning, "description", "description has %d characters, more than %d", n, MaxDescriptionLength)
	}
	for key := range e.Properties {
		if !IsXMLName(key) {
			issues.Addf(domain.SeverityFatal, "properties", "property key %q is not a valid element name", key)
		}
	}

	if t.Validate != nil {
		issues = append(issues, t.Validate(e)...)
	}
	for _, reporter := range domain.FindExtensions[domain.IssueReporter](e.Extensions) {
		issues = append(issues, reporter.Issues()...)
	}
	return issues
}

// Check validates e and returns a *domain.ValidationError when a FATAL issue was found
func Check(e domain.Entity, t domain.EntityType) (domain.Issues, error) {
	issues := Validate(e, t)
	if issues.HasFatal() {
		return issues, &domain.ValidationError{EntityType: t.Name, Issues: issues}
	}
	return issues, nil
}

// IsXMLName reports whether name can be used as an unqualified element name
func IsXMLName(name string) bool {
	if name == "" || strings.HasPrefix(strings.ToLower(name), "xml") {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}
