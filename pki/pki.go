package pki

import (
	"os"
	"sync"

	"github.com/opcfoundry/opcua-runtime/errors"
)

// PasswordCallback supplies the private key password at use time. The
// returned bytes are consumed immediately and never retained.
type PasswordCallback func() ([]byte, error)

// Certificate is an application instance certificate in DER encoding.
// The binding treats it as opaque; the engine owns parsing and chain
// validation.
type Certificate struct {
	der []byte
}

// CertificateFromDER wraps DER bytes. The bytes are copied.
func CertificateFromDER(der []byte) (*Certificate, error) {
	if len(der) == 0 {
		return nil, errors.InvalidData(errors.PhaseSession, nil, "empty certificate")
	}
	out := make([]byte, len(der))
	copy(out, der)
	return &Certificate{der: out}, nil
}

// CertificateFromFile loads a DER certificate from disk.
func CertificateFromFile(path string) (*Certificate, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSession, errors.KindInvalidData, err,
			"reading certificate file")
	}
	return CertificateFromDER(der)
}

// DER returns the encoded certificate.
func (c *Certificate) DER() []byte { return c.der }

// PrivateKey is a DER-encoded private key, possibly password protected.
// Close zeroes the key material; the key is unusable afterwards.
type PrivateKey struct {
	mu       sync.Mutex
	der      []byte
	password PasswordCallback
	closed   bool
}

// PrivateKeyFromDER wraps DER key bytes. password may be nil for
// unprotected keys. The bytes are copied.
func PrivateKeyFromDER(der []byte, password PasswordCallback) (*PrivateKey, error) {
	if len(der) == 0 {
		return nil, errors.InvalidData(errors.PhaseSession, nil, "empty private key")
	}
	out := make([]byte, len(der))
	copy(out, der)
	return &PrivateKey{der: out, password: password}, nil
}

// PrivateKeyFromFile loads a DER private key from disk.
func PrivateKeyFromFile(path string, password PasswordCallback) (*PrivateKey, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSession, errors.KindInvalidData, err,
			"reading private key file")
	}
	return PrivateKeyFromDER(der, password)
}

// DER returns the encoded key, or an error once the key is closed.
func (k *PrivateKey) DER() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil, errors.Internal(errors.PhaseSession, "private key already closed")
	}
	return k.der, nil
}

// Password returns the password callback, nil for unprotected keys.
func (k *PrivateKey) Password() PasswordCallback {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.password
}

// Close zeroes the key material. Idempotent.
func (k *PrivateKey) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	for i := range k.der {
		k.der[i] = 0
	}
	k.der = nil
	k.password = nil
	k.closed = true
	return nil
}
