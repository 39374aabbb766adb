package policyversion

import (
	"fmt"
	"strconv"
	"strings"
)

// semver is a minimal MAJOR.MINOR.PATCH parser/bumper; the policy store
// never needs comparison or range matching, only "next version given a
// change kind", so it stays this small rather than pulling in a full semver
// library.
type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("invalid version %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return semver{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}

func (v semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

// bumpMinor increments MINOR and resets PATCH, used for rule changes and
// rollbacks.
func (v semver) bumpMinor() semver {
	return semver{major: v.major, minor: v.minor + 1, patch: 0}
}

// bumpPatch increments PATCH only, used for threshold/list edits.
func (v semver) bumpPatch() semver {
	return semver{major: v.major, minor: v.minor, patch: v.patch + 1}
}
