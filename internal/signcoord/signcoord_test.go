package signcoord

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/bridge-validator/internal/config"
	"github.com/certen/bridge-validator/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		EVM: config.EVMChain{ChainID: 1337},
		TokenIDMapping: map[string]string{
			"asset-usdc": "0x1111111111111111111111111111111111111111",
		},
	}
}

func TestComputeSignHashIsDeterministic(t *testing.T) {
	c := New(testConfig(), nil, nil, nil)
	token := "asset-usdc"
	rec := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 2,
		Amount:       "500000",
		Receiver:     "0x2222222222222222222222222222222222222222",
		TokenID:      &token,
	}

	h1, err := c.ComputeSignHash(rec)
	require.NoError(t, err)
	require.Len(t, h1, 32)

	h2, err := c.ComputeSignHash(rec)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestComputeSignHashChangesWithAmount(t *testing.T) {
	c := New(testConfig(), nil, nil, nil)
	token := "asset-usdc"
	base := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 2,
		Amount:       "500000",
		Receiver:     "0x2222222222222222222222222222222222222222",
		TokenID:      &token,
	}
	changed := *base
	changed.Amount = "999999"

	h1, err := c.ComputeSignHash(base)
	require.NoError(t, err)
	h2, err := c.ComputeSignHash(&changed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

func TestComputeSignHashChangesWithIsWrapped(t *testing.T) {
	c := New(testConfig(), nil, nil, nil)
	token := "asset-usdc"
	base := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 2,
		Amount:       "500000",
		Receiver:     "0x2222222222222222222222222222222222222222",
		TokenID:      &token,
		IsWrapped:    true,
	}
	unwrapped := *base
	unwrapped.IsWrapped = false

	h1, err := c.ComputeSignHash(base)
	require.NoError(t, err)
	h2, err := c.ComputeSignHash(&unwrapped)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2, "is_wrapped must be bound into the sign-hash")
}

func TestComputeSignHashChangesWithChainID(t *testing.T) {
	token := "asset-usdc"
	rec := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 2,
		Amount:       "500000",
		Receiver:     "0x2222222222222222222222222222222222222222",
		TokenID:      &token,
	}

	cfgA := testConfig()
	cfgB := testConfig()
	cfgB.EVM.ChainID = 9999

	h1, err := New(cfgA, nil, nil, nil).ComputeSignHash(rec)
	require.NoError(t, err)
	h2, err := New(cfgB, nil, nil, nil).ComputeSignHash(rec)
	require.NoError(t, err)
	require.NotEqual(t, h1, h2, "chain_id must be bound into the sign-hash to prevent cross-chain replay")
}

func TestComputeSignHashNativeOmitsTokenAndIsWrapped(t *testing.T) {
	c := New(testConfig(), nil, nil, nil)
	rec := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 2,
		Amount:       "500000",
		Receiver:     "0x2222222222222222222222222222222222222222",
	}

	h, err := c.ComputeSignHash(rec)
	require.NoError(t, err)
	require.Len(t, h, 32)
}

func TestComputeSignHashUnmappedTokenErrors(t *testing.T) {
	c := New(testConfig(), nil, nil, nil)
	token := "not-configured"
	rec := &store.DepositRecord{
		SourceChain:  "asset",
		SourceTxID:   "abcd1234",
		IntraTxIndex: 0,
		Amount:       "1",
		Receiver:     "0x2222222222222222222222222222222222222222",
		TokenID:      &token,
	}
	_, err := c.ComputeSignHash(rec)
	require.Error(t, err)
}
