package assetchain

import (
	"fmt"
	"regexp"

	"github.com/mr-tron/base58"
)

// minAddressBytes/maxAddressBytes bound a plausible decoded
// asset-chain address payload length: a version byte, a public
// spend/view key pair, and a checksum.
const (
	minAddressBytes = 32
	maxAddressBytes = 96
)

var hex40 = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAssetAddress reports whether addr decodes as base58 to a
// plausibly-sized payload. It is a format check only: it does not verify
// the embedded checksum algorithm, which is chain-specific and out of
// scope for the bridge's observers.
func ValidAssetAddress(addr string) bool {
	if addr == "" {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(decoded) >= minAddressBytes && len(decoded) <= maxAddressBytes
}

// ValidEVMAddress reports whether addr is a 0x-prefixed 20-byte hex
// address, the receiver format used on the EVM chain leg.
func ValidEVMAddress(addr string) bool {
	return hex40.MatchString(addr)
}

// validAddressForTag picks the receiver format check by destination
// chain tag: hex-40 for the EVM leg, base58 for the asset-chain leg.
func validAddressForTag(addr, netTag string) bool {
	if netTag == "evm" {
		return ValidEVMAddress(addr)
	}
	return ValidAssetAddress(addr)
}

// ValidateDestination checks a memo's claimed receiver address against
// the format for its destination network tag, before it is accepted as
// a deposit, per the observer's rejection rule for malformed dst_add or
// mismatched dst_net_id.
func ValidateDestination(memo *BridgeMemo, expectedNetTag string) error {
	if memo.DstNetID != expectedNetTag {
		return fmt.Errorf("dst_net_id %q does not match expected tag %q", memo.DstNetID, expectedNetTag)
	}
	if !validAddressForTag(memo.DstAdd, expectedNetTag) {
		return fmt.Errorf("dst_add %q is not a valid address for network %q", memo.DstAdd, expectedNetTag)
	}
	return nil
}
