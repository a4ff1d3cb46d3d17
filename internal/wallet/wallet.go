// Package wallet holds the user's Ethereum key pair and the signing
// primitives the storage and messaging services authenticate with.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPath is the first account on the default Ethereum path, m/44'/60'/0'/0/0.
var DerivationPath = []uint32{
	hdkeychain.HardenedKeyStart + 44,
	hdkeychain.HardenedKeyStart + 60,
	hdkeychain.HardenedKeyStart + 0,
	0,
	0,
}

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Account is a secp256k1 key pair and its address.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

func newAccount(key *ecdsa.PrivateKey) *Account {
	return &Account{PrivateKey: key, Address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Generate creates a 12-word mnemonic from 16 bytes of entropy and derives
// the first account from it.
func Generate() (*Account, string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	acct, err := FromMnemonic(mnemonic)
	if err != nil {
		return nil, "", err
	}
	return acct, mnemonic, nil
}

// FromMnemonic derives the account at DerivationPath.
func FromMnemonic(mnemonic string) (*Account, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range DerivationPath {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive: %w", err)
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return newAccount(priv.ToECDSA()), nil
}

// FromHex loads an account from a hex private key, with or without 0x.
func FromHex(privateKeyHex string) (*Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return newAccount(key), nil
}

// PrivateKeyHex returns the 0x-prefixed private key.
func (a *Account) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(a.PrivateKey))
}

// PublicKeyBytes returns the uncompressed public key (65 bytes).
func (a *Account) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(&a.PrivateKey.PublicKey)
}

// SignMessage produces an EIP-191 personal_sign signature with V in {27, 28}.
func (a *Account) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), a.PrivateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignatureHex encodes a signature the way wallets present it.
func SignatureHex(sig []byte) string { return hexutil.Encode(sig) }

// DecodeSignature parses a 0x-prefixed 65-byte signature.
func DecodeSignature(s string) ([]byte, error) {
	sig, err := hexutil.Decode(s)
	if err != nil || len(sig) != crypto.SignatureLength {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// RecoverAddress returns the address that signed msg with EIP-191.
func RecoverAddress(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyMessage reports whether sig is addr's signature over msg.
func VerifyMessage(addr common.Address, msg, sig []byte) bool {
	got, err := RecoverAddress(msg, sig)
	return err == nil && got == addr
}

// IsAddress accepts 0x-prefixed 40-hex-char addresses. All-lowercase and
// all-uppercase forms carry no checksum; mixed case must match EIP-55.
func IsAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	if !common.IsHexAddress(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return body == common.HexToAddress(s).Hex()[2:]
}
