package certs

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnsureSelfSignedGeneratesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	first, err := EnsureSelfSigned(certPath, keyPath, []string{"mc.example.com", "10.0.0.5"}, 0)
	if err != nil {
		t.Fatalf("EnsureSelfSigned: %v", err)
	}
	if !first.Generated {
		t.Fatalf("expected a new certificate")
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("key should be private, got %v", info.Mode().Perm())
	}

	second, err := EnsureSelfSigned(certPath, keyPath, nil, 0)
	if err != nil {
		t.Fatalf("EnsureSelfSigned again: %v", err)
	}
	if second.Generated || second.Fingerprint != first.Fingerprint {
		t.Fatalf("existing certificate should be reused")
	}

	data, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		t.Fatalf("cert is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "mc.example.com" {
		t.Fatalf("unexpected DNS names: %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "10.0.0.5" {
		t.Fatalf("unexpected IPs: %v", cert.IPAddresses)
	}
}

func TestEnsureSelfSignedRenewsExpiring(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	certPEM, keyPEM, _, fp, err := IssueSelfSigned(nil, 24*time.Hour)
	if err != nil {
		t.Fatalf("IssueSelfSigned: %v", err)
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	info, err := EnsureSelfSigned(certPath, keyPath, nil, 0)
	if err != nil {
		t.Fatalf("EnsureSelfSigned: %v", err)
	}
	if !info.Generated || info.Fingerprint == fp {
		t.Fatalf("certificate close to expiry should be replaced")
	}
	if time.Until(info.NotAfter) < 300*24*time.Hour {
		t.Fatalf("unexpected expiry %v", info.NotAfter)
	}
}
