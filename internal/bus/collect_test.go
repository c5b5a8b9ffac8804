package bus

import "testing"

func TestSessionMatchesWithinEpochTolerance(t *testing.T) {
	cases := []struct {
		want, got string
		match     bool
	}{
		{"SIGN_evm_100", "SIGN_evm_100", true},
		{"SIGN_evm_100", "SIGN_evm_101", true},
		{"SIGN_evm_100", "SIGN_evm_99", true},
		{"SIGN_evm_100", "SIGN_evm_102", false},
		{"SIGN_evm_100", "SIGN_asset_101", false}, // different chain leg, not just a prefix string mismatch
		{"SIGN_evm_100", "SIGN_evm_asset_100", false},
		{"10", "11", false},  // no trailing-epoch shape, exact match only
		{"abc", "abc", true}, // exact match always matches regardless of shape
	}

	for _, c := range cases {
		got := sessionMatches(c.want, c.got)
		if got != c.match {
			t.Errorf("sessionMatches(%q, %q) = %v, want %v", c.want, c.got, got, c.match)
		}
	}
}
