package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyDoc = `<?xml version="1.0" encoding="UTF-8"?>
<issue-tracker>
  <modelVersion>16</modelVersion>
  <name>tracker</name>
  <extensions>
    <extension>
      <ext type="labels"><labels><label>bug</label></labels></ext>
    </extension>
    <extension>
      <ext type="links"><links/></ext>
    </extension>
  </extensions>
</issue-tracker>
`

func mustParse(t *testing.T, content string) *Document {
	t.Helper()
	doc, err := Parse([]byte(content))
	require.NoError(t, err)
	return doc
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for name, content := range map[string]string{
		"empty":     "",
		"truncated": "<project><name>x</name>",
		"garbage":   "not xml at all",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
		})
	}
}

func TestVersionMarker(t *testing.T) {
	doc := mustParse(t, "<project><name>x</name></project>")
	version, err := doc.Version()
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	doc.SetVersion(3)
	version, err = doc.Version()
	require.NoError(t, err)
	assert.Equal(t, 3, version)
	assert.Equal(t, VersionTag, doc.Root().ChildElements()[0].Tag)

	bad := mustParse(t, "<project><modelVersion>three</modelVersion></project>")
	_, err = bad.Version()
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestBytesIsDeterministic(t *testing.T) {
	doc := mustParse(t, legacyDoc)
	first, err := doc.Bytes()
	require.NoError(t, err)

	reparsed := mustParse(t, string(first))
	second, err := reparsed.Bytes()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.True(t, strings.HasPrefix(string(first), `<?xml version="1.0" encoding="UTF-8"?>`))
}

func TestStructuralEdits(t *testing.T) {
	doc := mustParse(t, legacyDoc)

	assert.True(t, doc.RenameRoot("issue-tracker", "issues"))
	assert.False(t, doc.RenameRoot("issue-tracker", "issues"))
	assert.Equal(t, "issues", doc.RootTag())

	assert.Equal(t, 2, doc.UnwrapTag("extension"))
	assert.Equal(t, 0, doc.UnwrapTag("extension"))
	exts := doc.Lookup("extensions").SelectElements("ext")
	require.Len(t, exts, 2)
	assert.Equal(t, "labels", exts[0].SelectAttrValue("type", ""))
	assert.Equal(t, "links", exts[1].SelectAttrValue("type", ""))

	assert.True(t, doc.InsertDefault("properties/stale", "true"))
	assert.False(t, doc.InsertDefault("properties/stale", "false"))
	assert.Equal(t, "true", doc.Lookup("properties/stale").Text())

	assert.Equal(t, 1, doc.RenameTag("label", "tag"))
	assert.Equal(t, 1, doc.RewriteText("tag", func(s string) (string, bool) {
		return strings.ToUpper(s), s != strings.ToUpper(s)
	}))
	assert.Equal(t, "BUG", doc.FindAll("tag")[0].Text())

	assert.Equal(t, 1, doc.RemoveTag("tag"))
	assert.Empty(t, doc.FindAll("tag"))
}

func TestCopyIsIndependent(t *testing.T) {
	doc := mustParse(t, legacyDoc)
	clone := doc.Copy()
	clone.RenameRoot("issue-tracker", "issues")

	assert.Equal(t, "issue-tracker", doc.RootTag())
	assert.Equal(t, "issues", clone.RootTag())
}
