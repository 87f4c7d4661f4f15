// Package tlsconfig loads the server's TLS identity for the optional TLS
// listener (spec.md §4.6 step 2). It tries a PKCS#12 bundle first, falling
// back to a PEM certificate/key pair. TLS is operator-configured, not
// self-provisioned: a missing cert or key is a ConfigError, the same as the
// teacher's certificate loading, which never generates one on the server's
// behalf.
package tlsconfig

import (
	"crypto/tls"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pkcs12"

	diskdb "github.com/transybao1393/diskdb-go"
)

// ErrMissingIdentity marks a TLS configuration error: certPath or keyPath
// does not exist. Surfaced as a ConfigError (spec.md's error taxonomy:
// "missing cert/key when TLS enabled" -> "server fails to start").
var ErrMissingIdentity = errors.New("tlsconfig: missing cert/key file")

// Load builds a server-side *tls.Config from certPath/keyPath. certPath is
// first decoded as a PKCS#12 bundle (the bundle's passphrase is read from
// the file named by keyPath, or empty if keyPath is ""); if that fails,
// both paths are loaded as a PEM certificate/key pair.
// Load never generates an identity: a missing certPath or keyPath is an
// error, since TLS here is operator-configured.
func Load(certPath, keyPath string) (*tls.Config, error) {
	if _, err := os.Stat(certPath); err != nil {
		return nil, diskdb.WithStack(errors.Wrapf(ErrMissingIdentity, "cert path %q", certPath))
	}
	if _, err := os.Stat(keyPath); err != nil {
		return nil, diskdb.WithStack(errors.Wrapf(ErrMissingIdentity, "key path %q", keyPath))
	}

	cert, err := loadPKCS12(certPath, keyPath)
	if err != nil {
		cert, err = tls.LoadX509KeyPair(certPath, keyPath)
	}
	if err != nil {
		return nil, diskdb.WithStack(err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func isPKCS12(certPath string) bool {
	n := len(certPath)
	return n >= 4 && (certPath[n-4:] == ".p12" || certPath[n-4:] == ".pfx")
}

func loadPKCS12(bundlePath, passphrasePath string) (tls.Certificate, error) {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return tls.Certificate{}, diskdb.WithStack(err)
	}
	passphrase := ""
	if passphrasePath != "" {
		p, err := os.ReadFile(passphrasePath)
		if err == nil {
			passphrase = string(p)
		}
	}
	privKey, leaf, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		return tls.Certificate{}, diskdb.WithStack(err)
	}
	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  privKey,
		Leaf:        leaf,
	}, nil
}
