package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestClassify_FolderPerGroup(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"control/run1.csv":   "1\n2\n",
		"control/run2.csv":   "3\n4\n",
		"treatment/run1.csv": "5\n6\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, LayoutFolderPerGroup, set.Layout)
	assert.Equal(t, []string{"control", "treatment"}, set.GroupNames())
	assert.Equal(t, []string{"control/run1.csv", "control/run2.csv"}, set.Groups[0].Files)
	assert.Equal(t, []string{"treatment/run1.csv"}, set.Groups[1].Files)
}

func TestClassify_FilePerGroup(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"baseline.csv":  "1\n",
		"candidate.csv": "2\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, LayoutFilePerGroup, set.Layout)
	assert.Equal(t, []string{"baseline", "candidate"}, set.GroupNames())
}

func TestClassify_Deterministic(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"b/x.csv": "1\n",
		"a/y.csv": "2\n",
		"a/x.csv": "3\n",
	})

	first, err := Classify(raw)
	require.NoError(t, err)
	second, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b"}, first.GroupNames())
}

func TestClassify_InvalidZip(t *testing.T) {
	_, err := Classify([]byte("definitely not a zip"))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInvalidZip, verr.Code)
}

func TestClassify_EmptyArchive(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{
			name:    "no entries",
			entries: map[string]string{},
		},
		{
			name: "only non-CSV files",
			entries: map[string]string{
				"readme.txt": "hello",
				"a/data.dat": "bytes",
			},
		},
		{
			name: "only hidden and system entries",
			entries: map[string]string{
				"__MACOSX/a/._data.csv": "junk",
				".hidden.csv":           "1\n",
				"a/.DS_Store":           "junk",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(buildZip(t, tt.entries))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, CodeEmptyArchive, verr.Code)
		})
	}
}

func TestClassify_MixedLayout(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"root.csv":    "1\n",
		"grp/sub.csv": "2\n",
	})

	_, err := Classify(raw)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeMixedLayout, verr.Code)
}

func TestClassify_NestedFoldersGroupedUnderTopLevel(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"alpha/deep/run1.csv": "1\n",
		"alpha/run2.csv":      "2\n",
		"beta/run1.csv":       "3\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, LayoutFolderPerGroup, set.Layout)
	assert.Equal(t, []string{"alpha", "beta"}, set.GroupNames())
	assert.Len(t, set.Groups[0].Files, 2)
}

func TestClassify_DuplicateGroupName(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"Group A/run1.csv": "1\n",
		"Group_A/run1.csv": "2\n",
		"other/run1.csv":   "3\n",
	})

	_, err := Classify(raw)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeDuplicateGroupName, verr.Code)
}

func TestClassify_SameRawKeyIsNotACollision(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"Group A/run1.csv": "1\n",
		"Group A/run2.csv": "2\n",
		"other/run1.csv":   "3\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Group_A", "other"}, set.GroupNames())
}

func TestClassify_InsufficientGroups(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"solo/run1.csv": "1\n",
		"solo/run2.csv": "2\n",
	})

	_, err := Classify(raw)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInsufficientGroups, verr.Code)
}

func TestSanitizeGroupName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "control", "control"},
		{"spaces become underscores", "Group A", "Group_A"},
		{"runs collapse", "a!!??b", "a_b"},
		{"surrounding underscores stripped", "__edge__", "edge"},
		{"keeps dots and dashes", "v1.2-beta", "v1.2-beta"},
		{"truncated to 64", string(bytes.Repeat([]byte("x"), 80)), string(bytes.Repeat([]byte("x"), 64))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeGroupName(tt.in))
		})
	}
}

func TestExtractGroups(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"control/run1.csv":   "10\n20\n",
		"treatment/run1.csv": "30\n40\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, ExtractGroups(raw, set, dest))

	content, err := os.ReadFile(filepath.Join(dest, "control", "run1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "10\n20\n", string(content))

	content, err = os.ReadFile(filepath.Join(dest, "treatment", "run1.csv"))
	require.NoError(t, err)
	assert.Equal(t, "30\n40\n", string(content))
}

func TestExtractGroups_UsesBaseNameOnly(t *testing.T) {
	raw := buildZip(t, map[string]string{
		"a/nested/run1.csv": "1\n",
		"b/run1.csv":        "2\n",
	})

	set, err := Classify(raw)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, ExtractGroups(raw, set, dest))

	// The nested entry lands flat inside its group directory.
	_, err = os.Stat(filepath.Join(dest, "a", "run1.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "a", "nested"))
	assert.True(t, os.IsNotExist(err))
}
