// Package catalog holds the built-in entity types, their extensions and the
// migration chains that bring old documents up to date.
package catalog

import (
	"github.com/rpattn/entitystore/internal/domain"
)

// ProjectType is the top level entity other entities hang off
var ProjectType = domain.EntityType{
	Name:         "project",
	Category:     "projects",
	ModelVersion: 2,
	Aliases:      []string{"repository"},
}

// IssuesType describes an issue tracker attached to a project
var IssuesType = domain.EntityType{
	Name:         "issues",
	Category:     "issues",
	ModelVersion: 19,
	Aliases:      []string{"issue-tracker"},
	Validate:     validateIssues,
}

// Types lists every built-in entity type
func Types() []domain.EntityType {
	return []domain.EntityType{ProjectType, IssuesType}
}

func validateIssues(e domain.Entity) domain.Issues {
	var issues domain.Issues
	if e.ParentID == nil {
		issues.Add(domain.SeverityError, "parentId", "issue tracker is not attached to a project")
	}
	if stale, ok := e.Property("stale"); ok && stale != "true" && stale != "false" {
		issues.Addf(domain.SeverityWarning, "properties/stale", "stale should be true or false, got %q", stale)
	}
	return issues
}
