package auth

import (
	"fmt"
	"strings"
)

// Permissions carried by API principals.
const (
	LedgerRead  = "ledger.read"
	LedgerWrite = "ledger.write"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Allows reports whether granted covers perm. "*" grants everything and
// "ledger.*" grants every ledger permission. Write implies read.
func Allows(granted []string, perm string) bool {
	for _, g := range granted {
		g = strings.TrimSpace(g)
		switch {
		case g == "*" || g == perm:
			return true
		case strings.HasSuffix(g, ".*") && strings.HasPrefix(perm, strings.TrimSuffix(g, "*")):
			return true
		case perm == LedgerRead && g == LedgerWrite:
			return true
		}
	}
	return false
}

// Require returns a ForbiddenError unless granted covers perm.
func Require(granted []string, perm string) error {
	if Allows(granted, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm}
}
