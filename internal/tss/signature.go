package tss

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// FormatEVM packs an ECDSA signature into the 65-byte r||s||v form
// go-ethereum and standard EVM verification expect, with v normalized to
// {27, 28}.
func FormatEVM(sig *SignResult) ([]byte, error) {
	if len(sig.R) != 32 || len(sig.S) != 32 {
		return nil, fmt.Errorf("signature components must be 32 bytes each")
	}
	out := make([]byte, 65)
	copy(out[0:32], sig.R)
	copy(out[32:64], sig.S)
	out[64] = sig.Recovery + 27
	return out, nil
}

// FormatAsset packs an ECDSA signature into the bare 64-byte r||s form
// the asset chain's externally-signed transaction submission expects (no
// recovery byte: the chain verifies against a known group key, not by
// recovering it).
func FormatAsset(sig *SignResult) ([]byte, error) {
	if len(sig.R) != 32 || len(sig.S) != 32 {
		return nil, fmt.Errorf("signature components must be 32 bytes each")
	}
	out := make([]byte, 64)
	copy(out[0:32], sig.R)
	copy(out[32:64], sig.S)
	return out, nil
}

// RecoverRecoveryID performs V-byte trial recovery: it tries recovery id
// 0 then 1 against digest and returns whichever recovers to the known
// group address, the way a party checks its own signing output before
// broadcasting it.
func RecoverRecoveryID(digest [32]byte, r, s []byte, groupAddress [20]byte) (byte, error) {
	for recID := byte(0); recID < 2; recID++ {
		sig := make([]byte, 65)
		copy(sig[0:32], r)
		copy(sig[32:64], s)
		sig[64] = recID

		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		addr := crypto.PubkeyToAddress(*pub)
		if bytes.Equal(addr.Bytes(), groupAddress[:]) {
			return recID, nil
		}
	}
	return 0, fmt.Errorf("no recovery id recovers to the expected group address")
}
