package redis

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
)

// SecureSocket configures TLS for a connection. Trust material comes from
// Cert or TrustStore, client identity from KeyStore or CertKey; each pair
// is mutually exclusive.
type SecureSocket struct {
	// Cert is the path to a PEM-encoded server CA certificate.
	Cert string

	// TrustStore is the bundle alternative to Cert.
	TrustStore *TrustStore

	// KeyStore holds the client certificate and private key in one file.
	KeyStore *KeyStore

	// CertKey holds the client certificate and private key as a file pair.
	CertKey *CertKey

	// Protocols restricts the enabled TLS versions by name, e.g.
	// "TLSv1.2". An empty list means no restriction.
	Protocols []string

	// Ciphers restricts the enabled cipher suites by their IANA names.
	// An empty list means no restriction.
	Ciphers []string

	// VerifyMode is FULL (chain and host name, the default), CA (chain
	// only) or NONE.
	VerifyMode string

	// StartTLS requests a plaintext-then-upgrade handshake.
	StartTLS bool
}

// TrustStore points at a PEM bundle of trusted CA certificates.
type TrustStore struct {
	Path     string
	Password string
}

// KeyStore points at a PEM bundle holding the client certificate and key.
type KeyStore struct {
	Path     string
	Password string
}

// CertKey points at separate client certificate and key files.
type CertKey struct {
	CertFile    string
	KeyFile     string
	KeyPassword string
}

// Verify modes accepted by SecureSocket.VerifyMode.
const (
	VerifyFull = "FULL"
	VerifyCA   = "CA"
	VerifyNone = "NONE"
)

var tlsVersions = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

// resolveTLS translates ss into a tls.Config. A nil ss leaves TLS
// disabled. File problems, ambiguous identity material and unknown verify
// modes all surface as TLS configuration errors with the native cause
// attached.
func resolveTLS(ss *SecureSocket) (*tls.Config, error) {
	if ss == nil {
		return nil, nil
	}
	if ss.Cert != "" && ss.TrustStore != nil {
		return nil, tlsConfigErr(nil, "cert path and trust store are mutually exclusive")
	}
	if ss.KeyStore != nil && ss.CertKey != nil {
		return nil, tlsConfigErr(nil, "key store and cert/key pair are mutually exclusive")
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	caPath := ss.Cert
	if ss.TrustStore != nil {
		caPath = ss.TrustStore.Path
	}
	if caPath != "" {
		pemBytes, err := os.ReadFile(caPath)
		if err != nil {
			return nil, tlsConfigErr(err, "cannot read CA certificate %q", caPath)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, tlsConfigErr(nil, "no certificates found in %q", caPath)
		}
		cfg.RootCAs = pool
	}

	switch {
	case ss.KeyStore != nil:
		cert, err := keyPairFromBundle(ss.KeyStore.Path, ss.KeyStore.Password)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	case ss.CertKey != nil:
		cert, err := keyPairFromFiles(ss.CertKey.CertFile, ss.CertKey.KeyFile, ss.CertKey.KeyPassword)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	switch strings.ToUpper(ss.VerifyMode) {
	case "", VerifyFull:
		// crypto/tls verifies chain and host name by default.
	case VerifyCA:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(cfg.RootCAs)
	case VerifyNone:
		cfg.InsecureSkipVerify = true
	default:
		return nil, tlsConfigErr(nil, "unknown verify mode %q", ss.VerifyMode)
	}

	if lo, hi, ok := protocolBounds(ss.Protocols); ok {
		cfg.MinVersion, cfg.MaxVersion = lo, hi
	}
	if ids := cipherIDs(ss.Ciphers); len(ids) > 0 {
		cfg.CipherSuites = ids
	}

	if ss.StartTLS {
		return nil, tlsConfigErr(nil, "startTLS upgrades are not supported, TLS is negotiated from the first byte")
	}

	return cfg, nil
}

func keyPairFromBundle(path, password string) (tls.Certificate, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, tlsConfigErr(err, "cannot read key store %q", path)
	}
	if err := rejectEncryptedKey(pemBytes, password); err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.X509KeyPair(pemBytes, pemBytes)
	if err != nil {
		return tls.Certificate{}, tlsConfigErr(err, "cannot load key store %q", path)
	}
	return cert, nil
}

func keyPairFromFiles(certFile, keyFile, password string) (tls.Certificate, error) {
	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, tlsConfigErr(err, "cannot read private key %q", keyFile)
	}
	if err := rejectEncryptedKey(keyBytes, password); err != nil {
		return tls.Certificate{}, err
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, tlsConfigErr(err, "cannot load certificate %q with key %q", certFile, keyFile)
	}
	return cert, nil
}

// rejectEncryptedKey refuses password-protected private keys up front so
// the caller sees one clear message instead of a parser failure.
func rejectEncryptedKey(pemBytes []byte, password string) error {
	for rest := pemBytes; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil
		}
		_, hasDEK := block.Headers["DEK-Info"]
		if hasDEK || strings.Contains(block.Type, "ENCRYPTED") {
			if password != "" {
				return tlsConfigErr(nil, "encrypted private keys are not supported, provide the key decrypted")
			}
			return tlsConfigErr(nil, "private key is encrypted and no password handling is available")
		}
	}
}

// verifyChainOnly validates the server chain against roots while skipping
// the host name check, the crypto/tls recipe for CA-only verification.
func verifyChainOnly(roots *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("server presented no certificate")
		}
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, cert)
		}
		opts := x509.VerifyOptions{
			Roots:         roots,
			Intermediates: x509.NewCertPool(),
		}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}

// protocolBounds maps named TLS versions to a min/max pair. Unknown names
// are ignored; ok is false when nothing usable remains.
func protocolBounds(protocols []string) (lo, hi uint16, ok bool) {
	for _, name := range protocols {
		v, known := tlsVersions[name]
		if !known {
			continue
		}
		if !ok || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}

// cipherIDs resolves IANA suite names against the platform's supported
// suites. Unknown names are ignored.
func cipherIDs(names []string) []uint16 {
	if len(names) == 0 {
		return nil
	}
	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		byName[s.Name] = s.ID
	}
	var ids []uint16
	for _, name := range names {
		if id, known := byName[strings.ToUpper(name)]; known {
			ids = append(ids, id)
		}
	}
	return ids
}
