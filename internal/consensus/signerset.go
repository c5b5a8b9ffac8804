package consensus

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// SelectSigners picks threshold-1 of the acceptors by sorting them
// ascending on sha256(sessionID + ":signers" + partyIDHex), then appends
// the proposer. Two evaluations over the same inputs always produce the
// same ordered list.
func SelectSigners(sessionID string, proposer int, acceptors []int, threshold int) []int {
	need := threshold - 1
	if need > len(acceptors) {
		need = len(acceptors)
	}
	if need < 0 {
		need = 0
	}

	type scored struct {
		id    int
		score [32]byte
	}
	ranked := make([]scored, len(acceptors))
	for i, id := range acceptors {
		key := fmt.Sprintf("%s:signers%02x", sessionID, id)
		ranked[i] = scored{id: id, score: sha256.Sum256([]byte(key))}
	}
	sort.Slice(ranked, func(i, j int) bool {
		for b := 0; b < 32; b++ {
			if ranked[i].score[b] != ranked[j].score[b] {
				return ranked[i].score[b] < ranked[j].score[b]
			}
		}
		return ranked[i].id < ranked[j].id
	})

	signers := make([]int, 0, need+1)
	for i := 0; i < need; i++ {
		signers = append(signers, ranked[i].id)
	}
	signers = append(signers, proposer)
	return signers
}
