package assetchain

import "testing"

func TestValidateDestinationAcceptsEVMReceiverForEVMTag(t *testing.T) {
	memo := &BridgeMemo{
		DstAdd:   "0x2222222222222222222222222222222222222222",
		DstNetID: "evm",
	}
	if err := ValidateDestination(memo, "evm"); err != nil {
		t.Fatalf("expected a hex-40 EVM address to validate, got: %v", err)
	}
}

func TestValidateDestinationRejectsEVMReceiverAsBase58(t *testing.T) {
	// A well-formed EVM address is not valid base58 (the leading "0x" is
	// not in the base58 alphabet), so validating it against the
	// asset-chain format must fail rather than succeed or panic.
	memo := &BridgeMemo{
		DstAdd:   "0x2222222222222222222222222222222222222222",
		DstNetID: "asset",
	}
	if err := ValidateDestination(memo, "asset"); err == nil {
		t.Fatal("expected an EVM address to fail asset-chain address validation")
	}
}

func TestValidateDestinationRejectsMismatchedNetID(t *testing.T) {
	memo := &BridgeMemo{
		DstAdd:   "0x2222222222222222222222222222222222222222",
		DstNetID: "asset",
	}
	if err := ValidateDestination(memo, "evm"); err == nil {
		t.Fatal("expected a dst_net_id mismatch to be rejected")
	}
}

func TestValidEVMAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"0x2222222222222222222222222222222222222222", true},
		{"0x222222222222222222222222222222222222222", false},  // 39 hex chars
		{"2222222222222222222222222222222222222222", false},   // missing 0x
		{"0xZZ22222222222222222222222222222222222222", false}, // non-hex
		{"", false},
	}
	for _, c := range cases {
		if got := ValidEVMAddress(c.addr); got != c.want {
			t.Errorf("ValidEVMAddress(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}
