package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/dwetransfer/internal/crypto"
	"github.com/harrylevesque/dwetransfer/internal/wallet"
)

func TestEnsureAccountGeneratesOnce(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, nil)
	require.False(t, s.Exists())

	first, created, err := s.EnsureAccount()
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, s.Exists())

	second, created, err := Open(dir, nil).EnsureAccount()
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.Address, second.Address)

	info, err := os.Stat(filepath.Join(dir, accountFile))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedStore(t *testing.T) {
	dir := t.TempDir()
	key := crypto.MustRandom(32)
	s := Open(dir, key)

	acct, _, err := wallet.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Save(acct))

	raw, err := os.ReadFile(filepath.Join(dir, accountEncFile))
	require.NoError(t, err)
	require.NotContains(t, string(raw), acct.Address.Hex())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, acct.Address, loaded.Address)

	_, err = Open(dir, crypto.MustRandom(32)).Load()
	require.Error(t, err)
}

func TestLoadRejectsMismatchedAddress(t *testing.T) {
	dir := t.TempDir()
	body := `{"private_key":"0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80","public_key":"0x0000000000000000000000000000000000000001"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, accountFile), []byte(body), 0o600))

	_, err := Open(dir, nil).Load()
	require.ErrorIs(t, err, ErrAddressMismatch)

	_, _, err = Open(dir, nil).EnsureAccount()
	require.ErrorIs(t, err, ErrAddressMismatch)
}

func TestEnsureAccountKeepsIncompleteRecord(t *testing.T) {
	const priv = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	for name, body := range map[string]string{
		"public key missing":  `{"private_key":"` + priv + `","public_key":""}`,
		"private key missing": `{"private_key":"","public_key":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, accountFile)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			acct, created, err := Open(dir, nil).EnsureAccount()
			require.ErrorIs(t, err, ErrIncompleteAccount)
			require.False(t, created)
			require.Nil(t, acct)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Equal(t, body, string(data))
		})
	}
}

func TestEnsureAccountEmptyRecordGenerates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, accountFile), []byte(`{"private_key":"","public_key":""}`), 0o600))

	_, created, err := Open(dir, nil).EnsureAccount()
	require.NoError(t, err)
	require.True(t, created)
}

func TestLoadMissing(t *testing.T) {
	_, err := Open(t.TempDir(), nil).Load()
	require.ErrorIs(t, err, ErrNoAccount)
}

func TestBackup(t *testing.T) {
	acct, _, err := wallet.Generate()
	require.NoError(t, err)

	path, err := Backup(acct, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, BackupFileName, filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, acct.PrivateKeyHex(), string(data))
}

func TestMasterKey(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	dir := t.TempDir()

	_, err := ReadMasterKey(dir)
	require.ErrorIs(t, err, ErrMasterKeyMissing)

	_, err = WriteMasterKey(dir)
	require.NoError(t, err)
	key, err := ReadMasterKey(dir)
	require.NoError(t, err)
	require.Len(t, key, 32)

	_, err = WriteMasterKey(dir)
	require.ErrorContains(t, err, "Refusing to overwrite")
	again, err := ReadMasterKey(dir)
	require.NoError(t, err)
	require.Equal(t, key, again)

	t.Setenv(MasterKeyEnv, "abcd")
	_, err = ReadMasterKey(dir)
	require.Error(t, err)
}

func TestPlainAccountMigratesToEncrypted(t *testing.T) {
	dir := t.TempDir()
	acct, created, err := Open(dir, nil).EnsureAccount()
	require.NoError(t, err)
	require.True(t, created)

	key := crypto.MustRandom(32)
	loaded, created, err := Open(dir, key).EnsureAccount()
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, acct.Address, loaded.Address)

	_, err = os.Stat(filepath.Join(dir, accountFile))
	require.True(t, os.IsNotExist(err))
	require.True(t, Open(dir, key).Exists())
}
