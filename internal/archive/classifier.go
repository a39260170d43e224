// Package archive classifies a KW permutation ZIP bundle into statistical
// groups. Classification is deterministic and side-effect-free: the same
// bytes always yield the same groups or the same error.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Validation error codes surfaced to the submission endpoint.
const (
	CodeInvalidZip         = "INVALID_ZIP"
	CodeEmptyArchive       = "EMPTY_ARCHIVE"
	CodeMixedLayout        = "MIXED_KW_ZIP_LAYOUT"
	CodeInvalidLayout      = "INVALID_KW_ZIP_LAYOUT"
	CodeDuplicateGroupName = "DUPLICATE_GROUP_NAME"
	CodeInvalidGroupName   = "INVALID_GROUP_NAME"
	CodeInsufficientGroups = "INSUFFICIENT_GROUPS"
	CodeEmptyGroup         = "EMPTY_GROUP"
	CodeInvalidCSV         = "INVALID_CSV"
)

// ValidationError carries a stable code plus a human-readable message.
type ValidationError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// Layout identifies how groups are encoded in the archive.
type Layout string

const (
	// LayoutFolderPerGroup: every CSV lives under a top-level folder and the
	// folder name is the group key.
	LayoutFolderPerGroup Layout = "A"
	// LayoutFilePerGroup: every CSV sits at the archive root and the file
	// stem is the group key.
	LayoutFilePerGroup Layout = "B"
)

// Group is one validated statistical group.
type Group struct {
	Name  string
	Files []string // entry paths inside the archive, sorted
}

// GroupSet is the complete classification result; never partial.
type GroupSet struct {
	Layout Layout
	Groups []Group // sorted by name
}

// GroupNames returns the group names in order.
func (s *GroupSet) GroupNames() []string {
	names := make([]string, len(s.Groups))
	for i, g := range s.Groups {
		names[i] = g.Name
	}
	return names
}

var (
	invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	underscoreRuns   = regexp.MustCompile(`_+`)
)

const maxGroupNameLen = 64

// sanitizeGroupName normalizes a raw group key: trim, replace characters
// outside [A-Za-z0-9._-] with underscores, collapse runs, strip surrounding
// underscores, truncate to 64.
func sanitizeGroupName(name string) string {
	s := strings.TrimSpace(name)
	s = invalidNameChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxGroupNameLen {
		s = s[:maxGroupNameLen]
	}
	return s
}

// csvEntries filters the archive listing down to data-bearing CSV entries:
// directories, hidden/system segments and non-CSV files never influence
// classification. Entries come back sorted by path.
func csvEntries(zr *zip.Reader) []*zip.File {
	var entries []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(name, ".") {
			continue
		}
		if hasHiddenSegment(name) {
			continue
		}
		if !strings.EqualFold(path.Ext(name), ".csv") {
			continue
		}
		entries = append(entries, f)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func hasHiddenSegment(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func segments(name string) []string {
	return strings.Split(strings.Trim(name, "/"), "/")
}

// Classify inspects the raw ZIP bytes and produces validated group
// definitions or a *ValidationError.
func Classify(raw []byte) (*GroupSet, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, newValidationError(CodeInvalidZip, "kwBundle must be a valid ZIP archive.")
	}

	entries := csvEntries(zr)
	if len(entries) == 0 {
		return nil, newValidationError(CodeEmptyArchive, "ZIP contains no usable CSV entries.")
	}

	hasFolderCSV := false
	hasRootCSV := false
	for _, f := range entries {
		if len(segments(f.Name)) > 1 {
			hasFolderCSV = true
		} else {
			hasRootCSV = true
		}
	}

	// Mixed layouts are rejected before any group construction; partial
	// grouping would be ambiguous and must never be attempted.
	if hasFolderCSV && hasRootCSV {
		return nil, newValidationError(CodeMixedLayout, "Do not mix root-level CSVs with grouped folders.")
	}

	layout := LayoutFilePerGroup
	if hasFolderCSV {
		layout = LayoutFolderPerGroup
	}

	groups := make(map[string][]string)
	// Tracks which raw key produced each case-folded sanitized name: two
	// distinct raw keys landing on the same name is a collision, the same
	// raw key repeating is just another file for the group.
	rawSources := make(map[string]string)

	for _, f := range entries {
		parts := segments(f.Name)

		var rawKey string
		if layout == LayoutFolderPerGroup {
			rawKey = parts[0]
		} else {
			if len(parts) > 1 {
				return nil, newValidationError(CodeInvalidLayout, "Nested folders are not allowed for a flat KW ZIP layout.")
			}
			rawKey = strings.TrimSuffix(parts[0], path.Ext(parts[0]))
		}

		name := sanitizeGroupName(rawKey)
		if name == "" {
			return nil, newValidationError(CodeInvalidGroupName, "Group names cannot be empty after sanitization.")
		}

		folded := strings.ToLower(name)
		if prev, ok := rawSources[folded]; ok && prev != rawKey {
			return nil, newValidationError(CodeDuplicateGroupName, "Group names collide after sanitization.")
		}
		rawSources[folded] = rawKey
		groups[name] = append(groups[name], f.Name)
	}

	if len(groups) < 2 {
		return nil, newValidationError(CodeInsufficientGroups, "At least two groups are required.")
	}
	for name, files := range groups {
		// Groups are only created with at least one file; keep the invariant
		// explicit.
		if len(files) == 0 {
			return nil, &ValidationError{
				Code:    CodeEmptyGroup,
				Message: "Each group must include at least one CSV file.",
				Details: map[string]any{"group": name},
			}
		}
	}

	set := &GroupSet{Layout: layout}
	for name, files := range groups {
		sort.Strings(files)
		set.Groups = append(set.Groups, Group{Name: name, Files: files})
	}
	sort.Slice(set.Groups, func(i, j int) bool { return set.Groups[i].Name < set.Groups[j].Name })
	return set, nil
}

// ExtractGroups writes every group's CSV entries into destDir/<group>/,
// using only the entry base name so archive paths cannot escape the
// destination.
func ExtractGroups(raw []byte, set *GroupSet, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return fmt.Errorf("failed to reopen archive: %w", err)
	}

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[f.Name] = f
	}

	for _, group := range set.Groups {
		groupDir := filepath.Join(destDir, group.Name)
		if err := os.MkdirAll(groupDir, 0o755); err != nil {
			return fmt.Errorf("failed to create group directory: %w", err)
		}
		for _, entry := range group.Files {
			f, ok := byName[entry]
			if !ok {
				return fmt.Errorf("archive entry %q disappeared", entry)
			}
			if err := extractEntry(f, filepath.Join(groupDir, path.Base(entry))); err != nil {
				return err
			}
		}
	}
	return nil
}

func extractEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %q: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to extract %q: %w", f.Name, err)
	}
	return nil
}
