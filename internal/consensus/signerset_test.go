package consensus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestSelectSignersDeterministic(t *testing.T) {
	first := SelectSigners("SIGN_evm_100", 0, []int{1, 2}, 2)
	second := SelectSigners("SIGN_evm_100", 0, []int{1, 2}, 2)

	// cmp.Diff catches ordering differences reflect.DeepEqual-based
	// assertions can gloss over when a slice happens to be reported
	// "equal" despite a stale backing array; here it simply confirms two
	// independent evaluations over the same inputs produce the same
	// ordered signer list.
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("SelectSigners is not deterministic (-first +second):\n%s", diff)
	}
	require.Len(t, first, 2)
	require.Equal(t, 0, first[len(first)-1], "proposer is always appended last")
}

func TestSelectSignersInputOrderDoesNotAffectResult(t *testing.T) {
	a := SelectSigners("SIGN_evm_200", 3, []int{1, 2, 4}, 3)
	b := SelectSigners("SIGN_evm_200", 3, []int{4, 1, 2}, 3)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("signer selection depends on acceptor input order (-a +b):\n%s", diff)
	}
}

func TestSelectSignersClampsNeedToAvailableAcceptors(t *testing.T) {
	signers := SelectSigners("SIGN_evm_300", 0, []int{1}, 3)
	require.ElementsMatch(t, []int{1, 0}, signers)
}
