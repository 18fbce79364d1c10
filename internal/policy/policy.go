package policy

import (
	"strings"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

// CheckActionAllowed reports whether an action type passes the
// --enable-actions allowlist. An empty allowlist allows everything.
func CheckActionAllowed(allowlist []string, actionType string) error {
	if len(allowlist) == 0 {
		return nil
	}
	norm := normalize(actionType)
	for _, allowed := range allowlist {
		if normalize(allowed) == norm {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "action "+norm+" blocked by --enable-actions policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToUpper(strings.TrimSpace(v)))
	return strings.Join(parts, "_")
}
