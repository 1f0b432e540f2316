package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTTL is the lifetime of generated certificates
const DefaultTTL = 365 * 24 * time.Hour

// renewBefore regenerates a certificate this close to expiry
const renewBefore = 7 * 24 * time.Hour

// Info describes the certificate in use
type Info struct {
	CertPath    string
	KeyPath     string
	NotAfter    time.Time
	Fingerprint string
	Generated   bool
}

// EnsureSelfSigned loads the certificate at certPath and keyPath, generating
// a self-signed one for hosts when either file is missing, unreadable or
// close to expiry.
func EnsureSelfSigned(certPath, keyPath string, hosts []string, ttl time.Duration) (*Info, error) {
	if certPath == "" || keyPath == "" {
		return nil, errors.New("cert and key paths are required")
	}

	if fileExists(certPath) && fileExists(keyPath) {
		cert, err := load(certPath, keyPath)
		if err == nil && time.Until(cert.NotAfter) > renewBefore {
			return &Info{
				CertPath:    certPath,
				KeyPath:     keyPath,
				NotAfter:    cert.NotAfter,
				Fingerprint: fingerprint(cert.Raw),
			}, nil
		}
	}

	certPEM, keyPEM, notAfter, fp, err := IssueSelfSigned(hosts, ttl)
	if err != nil {
		return nil, err
	}
	if err := writeFile(certPath, certPEM, 0644); err != nil {
		return nil, err
	}
	if err := writeFile(keyPath, keyPEM, 0600); err != nil {
		return nil, err
	}

	return &Info{
		CertPath:    certPath,
		KeyPath:     keyPath,
		NotAfter:    notAfter,
		Fingerprint: fp,
		Generated:   true,
	}, nil
}

// IssueSelfSigned creates a server certificate valid for hosts. Entries that
// parse as IPs become IP SANs, the rest DNS names.
func IssueSelfSigned(hosts []string, ttl time.Duration) (certPEM, keyPEM []byte, notAfter time.Time, fp string, err error) {
	if ttl == 0 {
		ttl = DefaultTTL
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, time.Time{}, "", fmt.Errorf("generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, time.Time{}, "", fmt.Errorf("serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "craft-server-manager",
			Organization: []string{"Craft Server Manager"},
		},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		if ip := net.ParseIP(host); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}
	if len(tmpl.DNSNames) > 0 {
		tmpl.Subject.CommonName = tmpl.DNSNames[0]
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, time.Time{}, "", fmt.Errorf("create cert: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return certPEM, keyPEM, tmpl.NotAfter, fingerprint(der), nil
}

func load(certPath, keyPath string) (*x509.Certificate, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	if len(pair.Certificate) == 0 {
		return nil, errors.New("empty certificate chain")
	}
	return x509.ParseCertificate(pair.Certificate[0])
}

func fingerprint(der []byte) string {
	h := sha256.Sum256(der)
	return fmt.Sprintf("%x", h[:])
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
