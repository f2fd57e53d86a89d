package freezethaw

import (
	"fmt"
	"strings"
)

// Strategy selects how the process is brought to quiescence.
type Strategy string

// Quiescence strategies.
const (
	// SuspendResume pauses request processing in place.
	SuspendResume Strategy = "suspend-resume"

	// ReloadToModel tears down and rebuilds all runtime services in the same
	// process, pausing mid-reload.
	ReloadToModel Strategy = "reload-to-model"

	// ReloadToDeploymentInit is reserved. Selecting it always fails.
	ReloadToDeploymentInit Strategy = "reload-to-deployment-init"
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	return string(s)
}

// Implemented reports whether the coordinator knows how to quiesce with s.
func (s Strategy) Implemented() bool {
	return s == SuspendResume || s == ReloadToModel
}

// ParseStrategy parses a strategy name. Matching ignores case, dashes and
// underscores, so "reload_to_model" and "ReloadToModel" are accepted.
func ParseStrategy(name string) (Strategy, error) {
	norm := normalizeStrategy(name)
	for _, s := range []Strategy{SuspendResume, ReloadToModel, ReloadToDeploymentInit} {
		if normalizeStrategy(string(s)) == norm {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedStrategy, name)
}

func normalizeStrategy(name string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(name)))
}
