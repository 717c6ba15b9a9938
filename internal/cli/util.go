package cli

import (
	"fmt"
	"strings"

	clierrors "github.com/ariel-frischer/bumpkit/internal/errors"
)

// invalidFlag reports a flag value outside its allowed set.
func invalidFlag(name, value string, allowed ...string) error {
	return clierrors.NewArgumentError(
		fmt.Sprintf("invalid --%s value %q", name, value),
		fmt.Sprintf("Valid values: %s", strings.Join(allowed, ", ")),
	)
}
