package localtss

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/certen/bridge-validator/internal/tss"
)

// curveOrder is the secp256k1 group order n.
var curveOrder, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// Protocol is the in-memory reference tss.Protocol. It designates the
// lowest-numbered party in each round as dealer/combiner, a
// simplification only acceptable because the combiner's view of the
// reconstructed key never leaves this process.
type Protocol struct{}

// evalPoint maps a party id to its nonzero Shamir evaluation point.
func evalPoint(partyID int) *big.Int {
	return big.NewInt(int64(partyID) + 1)
}

// DKG runs a dealer-based Shamir split of a freshly generated group
// private key: the lowest-id party deals shares and the group public
// key to everyone else.
func (Protocol) DKG(ctx context.Context, transport tss.Transport, partyID int, parties []int, threshold int) (*tss.KeyResult, error) {
	sorted := append([]int(nil), parties...)
	sort.Ints(sorted)
	dealer := sorted[0]

	if partyID == dealer {
		secret, err := rand.Int(rand.Reader, curveOrder)
		if err != nil {
			return nil, fmt.Errorf("generate group secret: %w", err)
		}
		coeffs := make([]*big.Int, threshold)
		coeffs[0] = secret
		for i := 1; i < threshold; i++ {
			c, err := rand.Int(rand.Reader, curveOrder)
			if err != nil {
				return nil, fmt.Errorf("generate polynomial coefficient: %w", err)
			}
			coeffs[i] = c
		}

		groupPub := secp256k1.PrivKeyFromBytes(padTo32(secret)).PubKey().SerializeCompressed()

		var ownShare *big.Int
		for _, p := range sorted {
			share := evalPolynomial(coeffs, evalPoint(p))
			if p == partyID {
				ownShare = share
				continue
			}
			if err := transport.Send(ctx, p, "dkg_share", padTo32(share)); err != nil {
				return nil, fmt.Errorf("send share to party %d: %w", p, err)
			}
		}
		if err := transport.Send(ctx, -1, "dkg_pubkey", groupPub); err != nil {
			return nil, fmt.Errorf("broadcast group public key: %w", err)
		}

		return &tss.KeyResult{Keyshare: padTo32(ownShare), GroupPublicKey: groupPub}, nil
	}

	shareBytes, err := transport.Wait(ctx, dealer, "dkg_share")
	if err != nil {
		return nil, fmt.Errorf("wait for keyshare: %w", err)
	}
	groupPub, err := transport.Wait(ctx, dealer, "dkg_pubkey")
	if err != nil {
		return nil, fmt.Errorf("wait for group public key: %w", err)
	}

	return &tss.KeyResult{Keyshare: shareBytes, GroupPublicKey: groupPub}, nil
}

// Sign has every signer send its share to the lowest-id signer, which
// reconstructs the group key via Lagrange interpolation, signs, and
// broadcasts the result back to the rest of the signer set.
func (Protocol) Sign(ctx context.Context, transport tss.Transport, partyID int, signers []int, keyshare []byte, digest [32]byte) (*tss.SignResult, error) {
	sorted := append([]int(nil), signers...)
	sort.Ints(sorted)
	combiner := sorted[0]

	if partyID != combiner {
		if err := transport.Send(ctx, combiner, "sign_share", keyshare); err != nil {
			return nil, fmt.Errorf("send share to combiner: %w", err)
		}
		raw, err := transport.Wait(ctx, combiner, "sign_result")
		if err != nil {
			return nil, fmt.Errorf("wait for signature: %w", err)
		}
		return decodeSignResult(raw)
	}

	shares := map[int]*big.Int{partyID: new(big.Int).SetBytes(keyshare)}
	for _, p := range sorted {
		if p == partyID {
			continue
		}
		raw, err := transport.Wait(ctx, p, "sign_share")
		if err != nil {
			return nil, fmt.Errorf("wait for share from party %d: %w", p, err)
		}
		shares[p] = new(big.Int).SetBytes(raw)
	}

	groupSecret := lagrangeReconstruct(sorted, shares)
	privKey := secp256k1.PrivKeyFromBytes(padTo32(groupSecret))

	compact := ecdsa.SignCompact(privKey, digest[:], false)
	result := &tss.SignResult{
		R:        compact[1:33],
		S:        compact[33:65],
		Recovery: compact[0] - 27,
	}

	encoded := encodeSignResult(result)
	for _, p := range sorted {
		if p == partyID {
			continue
		}
		if err := transport.Send(ctx, p, "sign_result", encoded); err != nil {
			return nil, fmt.Errorf("send signature to party %d: %w", p, err)
		}
	}
	return result, nil
}

func evalPolynomial(coeffs []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
		result.Mod(result, curveOrder)
	}
	return result
}

// lagrangeReconstruct recovers f(0) from the shares of the given signer
// set via Lagrange interpolation mod the curve order.
func lagrangeReconstruct(signers []int, shares map[int]*big.Int) *big.Int {
	total := new(big.Int)
	for _, i := range signers {
		xi := evalPoint(i)
		num := big.NewInt(1)
		den := big.NewInt(1)
		for _, j := range signers {
			if j == i {
				continue
			}
			xj := evalPoint(j)
			num.Mul(num, new(big.Int).Neg(xj))
			num.Mod(num, curveOrder)
			diff := new(big.Int).Sub(xi, xj)
			den.Mul(den, diff)
			den.Mod(den, curveOrder)
		}
		denInv := new(big.Int).ModInverse(den, curveOrder)
		lambda := new(big.Int).Mul(num, denInv)
		lambda.Mod(lambda, curveOrder)

		term := new(big.Int).Mul(lambda, shares[i])
		term.Mod(term, curveOrder)
		total.Add(total, term)
		total.Mod(total, curveOrder)
	}
	return total
}

func padTo32(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func encodeSignResult(r *tss.SignResult) []byte {
	out := make([]byte, 65)
	copy(out[0:32], r.R)
	copy(out[32:64], r.S)
	out[64] = r.Recovery
	return out
}

func decodeSignResult(raw []byte) (*tss.SignResult, error) {
	if len(raw) != 65 {
		return nil, fmt.Errorf("malformed signature result: expected 65 bytes, got %d", len(raw))
	}
	return &tss.SignResult{
		R:        append([]byte(nil), raw[0:32]...),
		S:        append([]byte(nil), raw[32:64]...),
		Recovery: raw[64],
	}, nil
}
