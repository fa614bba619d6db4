package auth

import (
	"errors"
	"testing"
)

func TestAllows(t *testing.T) {
	cases := []struct {
		granted []string
		perm    string
		want    bool
	}{
		{nil, LedgerRead, false},
		{[]string{LedgerRead}, LedgerRead, true},
		{[]string{LedgerRead}, LedgerWrite, false},
		{[]string{LedgerWrite}, LedgerRead, true},
		{[]string{"ledger.*"}, LedgerWrite, true},
		{[]string{"roster.*"}, LedgerWrite, false},
		{[]string{"*"}, LedgerWrite, true},
	}
	for _, tc := range cases {
		if got := Allows(tc.granted, tc.perm); got != tc.want {
			t.Fatalf("Allows(%v, %s) = %v, want %v", tc.granted, tc.perm, got, tc.want)
		}
	}
	var forbidden ForbiddenError
	if err := Require(nil, LedgerWrite); !errors.As(err, &forbidden) || forbidden.Permission != LedgerWrite {
		t.Fatalf("Require error = %v", err)
	}
}
