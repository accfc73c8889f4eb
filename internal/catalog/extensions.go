package catalog

import (
	"encoding/xml"
	"net/url"
	"sort"

	"github.com/rpattn/entitystore/internal/domain"
)

const (
	LabelsExtension = "labels"
	LinksExtension  = "links"
)

// Labeled is the capability of extensions that tag an entity with labels
type Labeled interface {
	LabelValues() []string
	HasLabel(label string) bool
}

// Labels tags an entity with free form labels
type Labels struct {
	XMLName xml.Name `xml:"labels"`
	Values  []string `xml:"label"`
}

// NewLabels creates a labels extension
func NewLabels(values ...string) Labels {
	return Labels{Values: values}
}

func (Labels) ExtensionType() string { return LabelsExtension }

func (l Labels) LabelValues() []string {
	return append([]string(nil), l.Values...)
}

func (l Labels) HasLabel(label string) bool {
	for _, v := range l.Values {
		if v == label {
			return true
		}
	}
	return false
}

// Issues warns about labels listed more than once
func (l Labels) Issues() domain.Issues {
	var issues domain.Issues
	seen := make(map[string]int, len(l.Values))
	for _, v := range l.Values {
		seen[v]++
	}
	dups := make([]string, 0)
	for v, n := range seen {
		if n > 1 {
			dups = append(dups, v)
		}
	}
	sort.Strings(dups)
	for _, v := range dups {
		issues.Addf(domain.SeverityWarning, "extensions/labels", "label %q is listed %d times", v, seen[v])
	}
	return issues
}

// Link is one related resource
type Link struct {
	Rel  string `xml:"rel,attr,omitempty"`
	Href string `xml:",chardata"`
}

// Links attaches related URLs to an entity
type Links struct {
	XMLName xml.Name `xml:"links"`
	Items   []Link   `xml:"link"`
}

func (Links) ExtensionType() string { return LinksExtension }

// Issues reports links that are not absolute URLs
func (l Links) Issues() domain.Issues {
	var issues domain.Issues
	for _, link := range l.Items {
		u, err := url.Parse(link.Href)
		if err != nil || u.Scheme == "" || u.Host == "" {
			issues.Addf(domain.SeverityError, "extensions/links", "link %q is not an absolute URL", link.Href)
		}
	}
	return issues
}
