package localtss

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/certen/bridge-validator/internal/tss"
)

func TestDKGAndSignRoundTrip(t *testing.T) {
	parties := []int{0, 1, 2}
	shared := NewMemTransport()
	proto := Protocol{}

	type dkgOut struct {
		id  int
		res *tss.KeyResult
		err error
	}
	results := make(chan dkgOut, len(parties))

	for _, p := range parties {
		go func(partyID int) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			res, err := proto.DKG(ctx, shared.For(partyID, parties), partyID, parties, 2)
			results <- dkgOut{partyID, res, err}
		}(p)
	}

	keyResults := make([]*tss.KeyResult, len(parties))
	for range parties {
		out := <-results
		require.NoError(t, out.err)
		keyResults[out.id] = out.res
	}
	for _, kr := range keyResults[1:] {
		require.Equal(t, keyResults[0].GroupPublicKey, kr.GroupPublicKey)
	}

	digest := sha256.Sum256([]byte("withdrawal digest"))
	signers := []int{0, 1}

	type signOut struct {
		res *tss.SignResult
		err error
	}
	signResults := make(chan signOut, len(signers))
	for _, p := range signers {
		go func(partyID int, share []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			res, err := proto.Sign(ctx, shared.For(partyID, signers), partyID, signers, share, digest)
			signResults <- signOut{res, err}
		}(p, keyResults[p].Keyshare)
	}

	var sigs []*tss.SignResult
	for range signers {
		out := <-signResults
		require.NoError(t, out.err)
		sigs = append(sigs, out.res)
	}
	require.Equal(t, sigs[0].R, sigs[1].R)
	require.Equal(t, sigs[0].S, sigs[1].S)

	evmSig, err := tss.FormatEVM(sigs[0])
	require.NoError(t, err)

	pub, err := crypto.SigToPub(digest[:], append(append(append([]byte{}, evmSig[0:32]...), evmSig[32:64]...), evmSig[64]-27))
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(*pub)
	require.NotEqual(t, [20]byte{}, addr)
	require.Equal(t, keyResults[0].GroupPublicKey, crypto.CompressPubkey(pub))
}
