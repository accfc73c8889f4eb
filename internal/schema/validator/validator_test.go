package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/entitystore/internal/domain"
)

var noteType = domain.EntityType{Name: "note", Category: "notes", ModelVersion: 1}

type flaggedExt struct{ severity domain.Severity }

func (flaggedExt) ExtensionType() string { return "flagged" }

func (f flaggedExt) Issues() domain.Issues {
	var issues domain.Issues
	issues.Add(f.severity, "extensions/flagged", "flag raised")
	return issues
}

func TestValidate_CleanEntityHasNoIssues(t *testing.T) {
	e := domain.NewEntity("note", "Groceries").WithProperty("due-date", "2024-05-01")

	if issues := Validate(e, noteType); len(issues) != 0 {
		t.Fatalf("expected no issues, got %v", issues)
	}
}

func TestValidate_FatalRules(t *testing.T) {
	self := domain.NewEntity("note", "loop")
	self = self.WithParent(self.ID)

	cases := map[string]domain.Entity{
		"nil id":       {Type: "note", Name: "x"},
		"wrong type":   domain.NewEntity("memo", "x"),
		"self parent":  self,
		"blank name":   domain.NewEntity("note", "   "),
		"property key": domain.NewEntity("note", "x").WithProperty("1st", "v"),
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			issues := Validate(e, noteType)
			if !issues.HasFatal() {
				t.Fatalf("expected a fatal issue, got %v", issues)
			}
			if _, err := Check(e, noteType); err == nil {
				t.Fatalf("expected Check to fail")
			}
		})
	}
}

func TestValidate_LongDescriptionWarns(t *testing.T) {
	e := domain.NewEntity("note", "long").WithDescription(strings.Repeat("é", MaxDescriptionLength+1))

	issues, err := Check(e, noteType)
	if err != nil {
		t.Fatalf("warnings must not fail validation: %v", err)
	}
	if len(issues.WithSeverity(domain.SeverityWarning)) != 1 {
		t.Fatalf("expected one warning, got %v", issues)
	}

	exact := e.WithDescription(strings.Repeat("é", MaxDescriptionLength))
	if issues := Validate(exact, noteType); len(issues) != 0 {
		t.Fatalf("description at the limit should be accepted, got %v", issues)
	}
}

func TestValidate_TypeHookAndExtensions(t *testing.T) {
	hooked := noteType
	hooked.Validate = func(e domain.Entity) domain.Issues {
		var issues domain.Issues
		if _, ok := e.Property("owner"); !ok {
			issues.Add(domain.SeverityError, "properties/owner", "owner is missing")
		}
		return issues
	}

	e := domain.NewEntity("note", "x").WithExtension(flaggedExt{severity: domain.SeverityInfo})
	issues, err := Check(e, hooked)
	if err != nil {
		t.Fatalf("non fatal issues must not fail validation: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected hook and extension issues, got %v", issues)
	}

	fatal := e.WithExtension(flaggedExt{severity: domain.SeverityFatal})
	_, err = Check(fatal, hooked)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.EntityType != "note" || len(verr.Issues) != 2 {
		t.Fatalf("unexpected validation error contents: %+v", verr)
	}
	if !strings.Contains(verr.Error(), "flag raised") {
		t.Fatalf("error should name the fatal issue: %v", verr)
	}
}

func TestIsXMLName(t *testing.T) {
	valid := []string{"a", "_x", "due-date", "v1.2", "größe"}
	invalid := []string{"", "1st", "-a", "a b", "ns:tag", "xmlThing", "a/b"}

	for _, name := range valid {
		if !IsXMLName(name) {
			t.Fatalf("expected %q to be valid", name)
		}
	}
	for _, name := range invalid {
		if IsXMLName(name) {
			t.Fatalf("expected %q to be invalid", name)
		}
	}
}
