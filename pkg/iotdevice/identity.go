package iotdevice

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/crypto/pkcs12"
)

// CredentialKind tags the active credential variant.
type CredentialKind int

const (
	// CredentialNone is the zero Credential; it never validates.
	CredentialNone CredentialKind = iota
	// CredentialSecret authenticates with a shared device secret.
	CredentialSecret
	// CredentialCertificate authenticates with a PKCS#12 client certificate.
	CredentialCertificate
)

// String returns the credential kind name.
func (k CredentialKind) String() string {
	switch k {
	case CredentialSecret:
		return "secret"
	case CredentialCertificate:
		return "certificate"
	default:
		return "none"
	}
}

// Credential is either a shared secret or a certificate keystore.
// Construct it with SharedSecret or Certificate.
type Credential struct {
	kind     CredentialKind
	secret   string
	keystore []byte
	password string
}

// SharedSecret returns a secret-based credential.
func SharedSecret(secret string) Credential {
	return Credential{kind: CredentialSecret, secret: secret}
}

// Certificate returns a certificate credential from a PKCS#12 keystore
// and its password. The keystore bytes are copied.
func Certificate(keystore []byte, password string) Credential {
	return Credential{
		kind:     CredentialCertificate,
		keystore: append([]byte(nil), keystore...),
		password: password,
	}
}

// Kind returns the active variant.
func (c Credential) Kind() CredentialKind {
	return c.kind
}

// Secret returns the shared secret, or "" for a certificate credential.
func (c Credential) Secret() string {
	return c.secret
}

// TLSCertificate decodes the keystore into a client certificate.
func (c Credential) TLSCertificate() (*tls.Certificate, error) {
	if c.kind != CredentialCertificate {
		return nil, fmt.Errorf("%w: credential is %s, not certificate", ErrInvalidIdentity, c.kind)
	}
	blocks, err := pkcs12.ToPEM(c.keystore, c.password)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding keystore: %w", ErrInvalidIdentity, err)
	}
	cert, err := keyPairFromPEM(blocks)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding keystore: %w", ErrInvalidIdentity, err)
	}
	return cert, nil
}

// keyPairFromPEM assembles a client certificate from decoded keystore bags.
// The leaf is the certificate matching the private key; any remaining
// certificates follow it as the chain.
func keyPairFromPEM(blocks []*pem.Block) (*tls.Certificate, error) {
	var keyPEM []byte
	var certs []*pem.Block
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			certs = append(certs, b)
		case "PRIVATE KEY":
			if keyPEM != nil {
				return nil, errors.New("keystore holds more than one private key")
			}
			keyPEM = pem.EncodeToMemory(b)
		}
	}
	if keyPEM == nil {
		return nil, errors.New("keystore holds no private key")
	}
	if len(certs) == 0 {
		return nil, errors.New("keystore holds no certificate")
	}

	for i, leaf := range certs {
		var chain bytes.Buffer
		_ = pem.Encode(&chain, leaf)
		for j, other := range certs {
			if j != i {
				_ = pem.Encode(&chain, other)
			}
		}
		pair, err := tls.X509KeyPair(chain.Bytes(), keyPEM)
		if err != nil {
			continue
		}
		if pair.Leaf == nil {
			if pair.Leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
				return nil, err
			}
		}
		return &pair, nil
	}
	return nil, errors.New("no certificate matches the private key")
}

// Identity is the device's address and credential on the platform.
// It is immutable once handed to a Device.
type Identity struct {
	ServerURI  string
	DeviceID   string
	Credential Credential
}

// Validate checks that the identity is complete.
//
// Certificate keystores are decoded to catch a wrong password early.
func (id Identity) Validate() error {
	if id.ServerURI == "" {
		return fmt.Errorf("%w: server URI is required", ErrInvalidIdentity)
	}
	if u, err := url.Parse(id.ServerURI); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server URI %q must look like ssl://host:port", ErrInvalidIdentity, id.ServerURI)
	}
	if id.DeviceID == "" {
		return fmt.Errorf("%w: device ID is required", ErrInvalidIdentity)
	}

	switch id.Credential.kind {
	case CredentialSecret:
		if id.Credential.secret == "" {
			return fmt.Errorf("%w: secret is empty", ErrInvalidIdentity)
		}
	case CredentialCertificate:
		if _, err := id.Credential.TLSCertificate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: no credential", ErrInvalidIdentity)
	}
	return nil
}
