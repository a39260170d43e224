package domain

import "fmt"

// JobType selects the analysis flow and the set of required uploads.
type JobType string

const (
	JobTypeBootstrapSingle JobType = "BOOTSTRAP_SINGLE"
	JobTypeBootstrapDual   JobType = "BOOTSTRAP_DUAL"
	JobTypeKWPermutation   JobType = "KW_PERMUTATION"
	JobTypeDescriptiveOnly JobType = "DESCRIPTIVE_ONLY"
)

// Upload roles as they appear in the multipart form.
const (
	RoleFile1    = "file1"
	RoleFile2    = "file2"
	RoleKWBundle = "kwBundle"
)

// InputRule describes how one upload role is treated for a job type.
type InputRule struct {
	Role     string
	Required bool
	Archive  bool
}

// inputRules is the per-type required-file descriptor table. Adding a job
// type means adding one entry here; validation code never branches on the
// type directly.
var inputRules = map[JobType][]InputRule{
	JobTypeBootstrapSingle: {
		{Role: RoleFile1, Required: true},
		{Role: RoleFile2, Required: false},
	},
	JobTypeBootstrapDual: {
		{Role: RoleFile1, Required: true},
		{Role: RoleFile2, Required: true},
	},
	JobTypeKWPermutation: {
		{Role: RoleKWBundle, Required: true, Archive: true},
	},
	JobTypeDescriptiveOnly: {
		{Role: RoleFile1, Required: true},
		{Role: RoleFile2, Required: false},
	},
}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	_, ok := inputRules[t]
	return ok
}

// InputRules returns the upload descriptor set for the job type.
func (t JobType) InputRules() ([]InputRule, error) {
	rules, ok := inputRules[t]
	if !ok {
		return nil, fmt.Errorf("unsupported job type %q", t)
	}
	return rules, nil
}

// AllowsRole reports whether the given upload role is accepted for t.
func (t JobType) AllowsRole(role string) bool {
	rules, ok := inputRules[t]
	if !ok {
		return false
	}
	for _, r := range rules {
		if r.Role == role {
			return true
		}
	}
	return false
}
