package cryptosig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keyfile reads and writes an unencrypted ECDSA P-256 private key as a raw
// hex dump of its D value, one node's key per file. Grounded on the
// teacher's keys.SimpleKeyfile, generalized to this package's key type.
type Keyfile struct {
	mu   sync.Mutex
	path string
}

func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// checkPermissions refuses to read a key file that group/other can access.
func (k *Keyfile) checkPermissions() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}
	const nonUserMask = (1 << 6) - 1
	if perm := info.Mode().Perm() & nonUserMask; perm != 0 {
		return fmt.Errorf("keyfile %s permissions must exclude group/other, got %o", k.path, info.Mode().Perm())
	}
	return nil
}

func (k *Keyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := k.checkPermissions(); err != nil {
		return nil, err
	}
	buf, err := ioutil.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("keyfile %s: %w", k.path, err)
	}
	priv := new(ecdsa.PrivateKey)
	priv.PublicKey.Curve = elliptic.P256()
	priv.D = new(big.Int).SetBytes(raw)
	priv.PublicKey.X, priv.PublicKey.Y = elliptic.P256().ScalarBaseMult(raw)
	return priv, nil
}

func (k *Keyfile) WriteKey(priv *ecdsa.PrivateKey) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}
	raw := hex.EncodeToString(priv.D.Bytes())
	return ioutil.WriteFile(k.path, []byte(raw), 0600)
}
