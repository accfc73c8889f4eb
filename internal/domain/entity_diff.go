package domain

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of unchanged lines kept around each change
const DiffContext = 3

// DiffContents produces a unified diff between two stored document versions.
// A nil side is rendered as an empty document. Identical contents yield "".
func DiffContents(baseLabel string, base []byte, targetLabel string, target []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(normalizeContent(base)),
		B:        difflib.SplitLines(normalizeContent(target)),
		FromFile: baseLabel,
		ToFile:   targetLabel,
		Context:  DiffContext,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to build diff: %w", err)
	}
	return text, nil
}

// DiffHistory diffs a history entry against the current content
func DiffHistory(entry HistoryEntry, current []byte) (string, error) {
	baseLabel := fmt.Sprintf("%s@%d", entry.Identity, entry.Sequence)
	return DiffContents(baseLabel, entry.Content, entry.Identity, current)
}

func normalizeContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}
