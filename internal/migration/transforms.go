package migration

import (
	"fmt"

	"github.com/rpattn/entitystore/internal/document"
)

// Noop is for versions whose document shape did not change
func Noop(*document.Document) error {
	return nil
}

// RenameRoot renames a legacy root tag
func RenameRoot(from, to string) Transform {
	return func(doc *document.Document) error {
		doc.RenameRoot(from, to)
		return nil
	}
}

// RenameTag renames every node tagged from
func RenameTag(from, to string) Transform {
	return func(doc *document.Document) error {
		doc.RenameTag(from, to)
		return nil
	}
}

// RemoveTag drops every node tagged tag
func RemoveTag(tag string) Transform {
	return func(doc *document.Document) error {
		doc.RemoveTag(tag)
		return nil
	}
}

// UnwrapTag strips wrapper nodes, keeping their children in place
func UnwrapTag(tag string) Transform {
	return func(doc *document.Document) error {
		doc.UnwrapTag(tag)
		return nil
	}
}

// InsertDefault creates the node at path with value when absent
func InsertDefault(path, value string) Transform {
	return func(doc *document.Document) error {
		doc.InsertDefault(path, value)
		return nil
	}
}

// RewriteText rewrites the text of matching nodes
func RewriteText(tag string, rewrite func(string) (string, bool)) Transform {
	return func(doc *document.Document) error {
		doc.RewriteText(tag, rewrite)
		return nil
	}
}

// RequireRoot fails unless the root tag is one of tags
func RequireRoot(tags ...string) Transform {
	return func(doc *document.Document) error {
		root := doc.RootTag()
		for _, tag := range tags {
			if root == tag {
				return nil
			}
		}
		return fmt.Errorf("unexpected root %q, want one of %v", root, tags)
	}
}

// Chain runs transforms in order, stopping at the first error
func Chain(transforms ...Transform) Transform {
	return func(doc *document.Document) error {
		for _, transform := range transforms {
			if err := transform(doc); err != nil {
				return err
			}
		}
		return nil
	}
}
