package staging

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/datadock/datadock/pkg/errors"
)

// DefaultKeyPath is where the staging access key lives unless the settings
// point somewhere else.
const DefaultKeyPath = "~/.ssh/datadock"

const (
	keyBits    = 2048
	keyComment = "datadock"
)

var fs = afero.NewOsFs()

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// KeyPair describes the local SSH key used to reach the staging host. The
// public half and its fingerprint are sent with the registration request so
// the administrator can grant this machine access.
type KeyPair struct {
	PrivateKeyPath string
	PublicKey      string
	Fingerprint    string
}

// FindKeyPair loads the private key at keyPath and derives the registration
// fields from its public half.
func FindKeyPair(keyPath string) (KeyPair, error) {
	expanded, err := homedirExpand(keyPath)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "expand key path")
	}

	raw, err := afero.ReadFile(fs, expanded)
	if os.IsNotExist(err) {
		return KeyPair{}, errors.FileNotFound{Path: expanded}
	} else if err != nil {
		return KeyPair{}, errors.WithContext(err, "read private key")
	}

	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "parse private key")
	}
	return keyPairFrom(expanded, signer.PublicKey()), nil
}

// NewKeyPair generates a fresh RSA key, writes the private half to keyPath
// with owner-only permissions, and the public half next to it in
// authorized_keys format.
func NewKeyPair(keyPath string) (KeyPair, error) {
	expanded, err := homedirExpand(keyPath)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "expand key path")
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "generate key")
	}

	if err := fs.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return KeyPair{}, errors.WithContext(err, "create key directory")
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := afero.WriteFile(fs, expanded, pemBytes, 0600); err != nil {
		return KeyPair{}, errors.WithContext(err, "write private key")
	}

	pub, err := ssh.NewPublicKey(&key.PublicKey)
	if err != nil {
		return KeyPair{}, errors.WithContext(err, "derive public key")
	}

	pair := keyPairFrom(expanded, pub)
	publicContents := pair.PublicKey + "\n"
	if err := afero.WriteFile(fs, expanded+".pub", []byte(publicContents), 0644); err != nil {
		return KeyPair{}, errors.WithContext(err, "write public key")
	}
	return pair, nil
}

// EnsureKeyPair returns the key at keyPath, generating one on first use.
func EnsureKeyPair(keyPath string) (KeyPair, error) {
	pair, err := FindKeyPair(keyPath)
	if _, missing := errors.RootCause(err).(errors.FileNotFound); missing {
		return NewKeyPair(keyPath)
	}
	return pair, err
}

func keyPairFrom(path string, pub ssh.PublicKey) KeyPair {
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	return KeyPair{
		PrivateKeyPath: path,
		PublicKey:      authorized + " " + keyComment,
		Fingerprint:    ssh.FingerprintLegacyMD5(pub),
	}
}
