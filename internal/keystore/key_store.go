// Package keystore persists the user's wallet key pair on disk.
package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrylevesque/dwetransfer/internal/crypto"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

const (
	accountFile    = "account.json"
	accountEncFile = "account.json.enc"
	masterKeyFile  = "master.key"
	// BackupFileName is the name of the exported private key file.
	BackupFileName = "dwetransfer-privateKey.txt"
	// MasterKeyEnv overrides the master.key file.
	MasterKeyEnv = "DWETRANSFER_MASTER_KEY_HEX"
)

var (
	ErrNoAccount        = errors.New("no account stored")
	ErrAddressMismatch  = errors.New("stored public key does not match private key")
	ErrMasterKeyMissing = errors.New("master key not configured")
)

// ErrIncompleteAccount means the account file holds only one of the two keys.
// EnsureAccount never replaces such a file with a generated account.
var ErrIncompleteAccount = errors.New("stored account is missing its private or public key")

// record is the on-disk layout: the private key and its derived address.
type record struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// Store reads and writes the account file in dir. With a master key the
// file is AES-GCM encrypted.
type Store struct {
	dir       string
	masterKey []byte
	mu        sync.Mutex
}

// Open returns a Store rooted at dir. masterKey may be nil.
func Open(dir string, masterKey []byte) *Store {
	return &Store{dir: dir, masterKey: masterKey}
}

func (s *Store) path() string {
	if s.masterKey != nil {
		return filepath.Join(s.dir, accountEncFile)
	}
	return filepath.Join(s.dir, accountFile)
}

// Exists reports whether an account file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// Load reads the stored account.
func (s *Store) Load() (*wallet.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*wallet.Account, error) {
	blob, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		if s.masterKey != nil {
			return s.migratePlain()
		}
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}
	if s.masterKey != nil {
		if blob, err = crypto.DecryptAESGCM(s.masterKey, blob); err != nil {
			return nil, fmt.Errorf("decrypt account: %w", err)
		}
	}
	return decode(blob)
}

// migratePlain encrypts an account.json written before a master key was
// configured and removes the plaintext copy.
func (s *Store) migratePlain() (*wallet.Account, error) {
	plainPath := filepath.Join(s.dir, accountFile)
	blob, err := os.ReadFile(plainPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}
	acct, err := decode(blob)
	if err != nil {
		return nil, err
	}
	if err := s.save(acct); err != nil {
		return nil, fmt.Errorf("encrypt account: %w", err)
	}
	if err := os.Remove(plainPath); err != nil {
		return nil, err
	}
	return acct, nil
}

func decode(blob []byte) (*wallet.Account, error) {
	var rec record
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	switch {
	case rec.PrivateKey == "" && rec.PublicKey == "":
		return nil, ErrNoAccount
	case rec.PrivateKey == "" || rec.PublicKey == "":
		return nil, ErrIncompleteAccount
	}
	acct, err := wallet.FromHex(rec.PrivateKey)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(acct.Address.Hex(), rec.PublicKey) {
		return nil, ErrAddressMismatch
	}
	return acct, nil
}

// Save writes acct, replacing any stored account.
func (s *Store) Save(acct *wallet.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(acct)
}

func (s *Store) save(acct *wallet.Account) error {
	plain, err := json.MarshalIndent(record{
		PrivateKey: acct.PrivateKeyHex(),
		PublicKey:  acct.Address.Hex(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if s.masterKey != nil {
		if plain, err = crypto.EncryptAESGCM(s.masterKey, plain); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

// EnsureAccount loads the stored account, or generates and saves one when
// none exists. created reports whether generation happened.
func (s *Store) EnsureAccount() (acct *wallet.Account, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, err = s.load()
	if err == nil {
		return acct, false, nil
	}
	if !errors.Is(err, ErrNoAccount) {
		return nil, false, err
	}
	acct, _, err = wallet.Generate()
	if err != nil {
		return nil, false, fmt.Errorf("generate account: %w", err)
	}
	if err := s.save(acct); err != nil {
		return nil, false, fmt.Errorf("save account: %w", err)
	}
	return acct, true, nil
}

// Backup writes the private key to destDir/dwetransfer-privateKey.txt.
func Backup(acct *wallet.Account, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, BackupFileName)
	if err := os.WriteFile(path, []byte(acct.PrivateKeyHex()), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// ReadMasterKey reads the 32-byte key from DWETRANSFER_MASTER_KEY_HEX, then
// from dir/master.key. It returns ErrMasterKeyMissing when neither is set.
func ReadMasterKey(dir string) ([]byte, error) {
	h := os.Getenv(MasterKeyEnv)
	if h == "" {
		data, err := os.ReadFile(filepath.Join(dir, masterKeyFile))
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMasterKeyMissing
		}
		if err != nil {
			return nil, err
		}
		h = string(data)
	}
	b, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars)")
	}
	return b, nil
}

// WriteMasterKey creates dir/master.key with a fresh key. It refuses to
// overwrite an existing file.
func WriteMasterKey(dir string) (string, error) {
	path := filepath.Join(dir, masterKeyFile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%s already exists. Refusing to overwrite", path)
	}
	if err != nil {
		return "", err
	}
	key := hex.EncodeToString(crypto.MustRandom(32))
	if _, err := f.WriteString(key + "\n"); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
