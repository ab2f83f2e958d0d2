package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Requirement is a minimum client version. Clients report their version in
// the X-Client-Version header; anything older than the minimum is refused.
type Requirement struct {
	min *semver.Version
}

// NewRequirement parses a minimum version. An empty string yields a nil
// Requirement, which accepts every client.
func NewRequirement(min string) (*Requirement, error) {
	min = strings.TrimSpace(min)
	if min == "" {
		return nil, nil
	}
	v, err := semver.NewVersion(min)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum client version %q: %w", min, err)
	}
	return &Requirement{min: v}, nil
}

// Minimum returns the configured minimum in canonical form.
func (r *Requirement) Minimum() string {
	if r == nil {
		return ""
	}
	return r.min.String()
}

// Satisfied reports whether the client version meets the minimum. An
// unparseable client version is an error so callers can answer 400 rather
// than 426.
func (r *Requirement) Satisfied(clientVersion string) (bool, error) {
	if r == nil {
		return true, nil
	}
	v, err := semver.NewVersion(strings.TrimSpace(clientVersion))
	if err != nil {
		return false, fmt.Errorf("invalid client version %q: %w", clientVersion, err)
	}
	return !v.LessThan(r.min), nil
}
