package tss

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager owns this party's opaque keyshare and the group's public
// key, persisting both to disk so a restarted party does not need to
// re-run DKG.
type KeyManager struct {
	keyshareePath string
	groupKeyPath  string

	keyshare []byte
	groupKey *secp256k1.PublicKey
}

// NewKeyManager builds a manager that persists under dataDir.
func NewKeyManager(dataDir string) *KeyManager {
	return &KeyManager{
		keyshareePath: filepath.Join(dataDir, "keyshare.hex"),
		groupKeyPath:  filepath.Join(dataDir, "group_pubkey.hex"),
	}
}

// HasKey reports whether a keyshare has already been generated and saved.
func (km *KeyManager) HasKey() bool {
	_, err := os.Stat(km.keyshareePath)
	return err == nil
}

// Load reads the keyshare and group public key from disk.
func (km *KeyManager) Load() error {
	raw, err := os.ReadFile(km.keyshareePath)
	if err != nil {
		return fmt.Errorf("read keyshare: %w", err)
	}
	keyshare, err := hex.DecodeString(string(raw))
	if err != nil {
		return fmt.Errorf("decode keyshare: %w", err)
	}

	rawPub, err := os.ReadFile(km.groupKeyPath)
	if err != nil {
		return fmt.Errorf("read group public key: %w", err)
	}
	pubBytes, err := hex.DecodeString(string(rawPub))
	if err != nil {
		return fmt.Errorf("decode group public key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("parse group public key: %w", err)
	}

	km.keyshare = keyshare
	km.groupKey = pub
	return nil
}

// Store records the result of a completed DKG run, persisting the
// keyshare owner-only (0600) and the group public key readable by all
// (0644).
func (km *KeyManager) Store(result *KeyResult) error {
	pub, err := secp256k1.ParsePubKey(result.GroupPublicKey)
	if err != nil {
		return fmt.Errorf("parse group public key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(km.keyshareePath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(km.keyshareePath, []byte(hex.EncodeToString(result.Keyshare)), 0600); err != nil {
		return fmt.Errorf("write keyshare: %w", err)
	}
	if err := os.WriteFile(km.groupKeyPath, []byte(hex.EncodeToString(result.GroupPublicKey)), 0644); err != nil {
		return fmt.Errorf("write group public key: %w", err)
	}

	km.keyshare = result.Keyshare
	km.groupKey = pub
	return nil
}

// Keyshare returns this party's opaque key material.
func (km *KeyManager) Keyshare() []byte { return km.keyshare }

// GroupPublicKey returns the shared group public key.
func (km *KeyManager) GroupPublicKey() *secp256k1.PublicKey { return km.groupKey }

// GroupEVMAddress derives the 20-byte EVM-style address from the group
// public key, the way a withdrawal recipient contract verifies it.
func (km *KeyManager) GroupEVMAddress() ([20]byte, error) {
	if km.groupKey == nil {
		return [20]byte{}, fmt.Errorf("group public key not loaded")
	}
	uncompressed := km.groupKey.SerializeUncompressed()
	pub, err := crypto.UnmarshalPubkey(uncompressed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("unmarshal group public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
