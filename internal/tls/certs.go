// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tls generates and loads the certificates securing the control
// health endpoint with mutual TLS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	caName     = "root-ca"
	ServerName = "control"
	ClientName = "probe"
)

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Leaf holds a CA-signed certificate and key saved as {Name}.crt and {Name}.key.
type Leaf struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Name        string
}

func serialNumber() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_SERIAL_FAILED").Wrap(err)
	}
	return serial, nil
}

// GenerateCA creates a root CA for instance. The instance name appears in
// the CN and as the URI SAN holoauth://instance/{instance}.
func GenerateCA(instance string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").With("cert", caName).Wrap(err)
	}
	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}
	uri, err := url.Parse("holoauth://instance/" + instance)
	if err != nil {
		return nil, oops.Code("TLS_CA_FAILED").With("instance", instance).Wrap(err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"holoauth"},
			CommonName:   "holoauth CA " + instance,
		},
		NotBefore:             now,
		NotAfter:              now.AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		URIs:                  []*url.URL{uri},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_CA_FAILED").With("operation", "create certificate").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_CA_FAILED").With("operation", "parse certificate").Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert issues a server certificate valid for localhost,
// 127.0.0.1 and any extra hosts.
func GenerateServerCert(ca *CA, name string, hosts ...string) (*Leaf, error) {
	dns := []string{"localhost"}
	ips := []net.IP{net.ParseIP("127.0.0.1")}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" {
			dns = append(dns, h)
		}
	}
	return issue(ca, name, x509.ExtKeyUsageServerAuth, func(c *x509.Certificate) {
		c.DNSNames = dns
		c.IPAddresses = ips
	})
}

// GenerateClientCert issues a client certificate for mutual TLS.
func GenerateClientCert(ca *CA, name string) (*Leaf, error) {
	return issue(ca, name, x509.ExtKeyUsageClientAuth, nil)
}

func issue(ca *CA, name string, usage x509.ExtKeyUsage, customize func(*x509.Certificate)) (*Leaf, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").With("cert", name).Wrap(err)
	}
	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"holoauth"},
			CommonName:   "holoauth-" + name,
		},
		NotBefore:   now,
		NotAfter:    now.AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{usage},
	}
	if customize != nil {
		customize(template)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("TLS_ISSUE_FAILED").With("cert", name).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_ISSUE_FAILED").With("cert", name).Wrap(err)
	}
	return &Leaf{Certificate: cert, PrivateKey: key, Name: name}, nil
}

// Save writes the CA and leaves into certsDir with 0600 permissions.
func Save(certsDir string, ca *CA, leaves ...*Leaf) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("dir", certsDir).Wrap(err)
	}
	if err := writePair(certsDir, caName, ca.Certificate, ca.PrivateKey); err != nil {
		return err
	}
	for _, leaf := range leaves {
		if err := writePair(certsDir, leaf.Name, leaf.Certificate, leaf.PrivateKey); err != nil {
			return err
		}
	}
	return nil
}

func writePair(dir, name string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("cert", name).Wrap(err)
	}
	if err := writePEM(filepath.Join(dir, name+".crt"), "CERTIFICATE", cert.Raw); err != nil {
		return err
	}
	return writePEM(filepath.Join(dir, name+".key"), "EC PRIVATE KEY", keyDER)
}

func writePEM(path, blockType string, der []byte) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(filepath.Clean(path), data, 0o600); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// LoadCA reads root-ca.crt and root-ca.key from certsDir.
func LoadCA(certsDir string) (*CA, error) {
	certPEM, err := os.ReadFile(filepath.Clean(filepath.Join(certsDir, caName+".crt")))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Wrap(err)
	}
	keyPEM, err := os.ReadFile(filepath.Clean(filepath.Join(certsDir, caName+".key")))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Wrap(err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Errorf("certificate is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Wrap(err)
	}
	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Errorf("key is not PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Wrap(err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

func loadPool(certsDir string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(filepath.Clean(filepath.Join(certsDir, caName+".crt")))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert", caName).Errorf("no certificates in CA file")
	}
	return pool, nil
}

func loadLeaf(certsDir, name string) (cryptotls.Certificate, error) {
	cert, err := cryptotls.LoadX509KeyPair(
		filepath.Join(certsDir, name+".crt"),
		filepath.Join(certsDir, name+".key"))
	if err != nil {
		return cryptotls.Certificate{}, oops.Code("TLS_LOAD_FAILED").With("cert", name).Wrap(err)
	}
	return cert, nil
}

// ServerConfig loads a server TLS config that requires client certificates
// signed by the directory's CA.
func ServerConfig(certsDir, name string) (*cryptotls.Config, error) {
	cert, err := loadLeaf(certsDir, name)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(certsDir)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   cryptotls.RequireAndVerifyClientCert,
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

// ClientConfig loads a client TLS config presenting the named certificate.
func ClientConfig(certsDir, name, serverName string) (*cryptotls.Config, error) {
	cert, err := loadLeaf(certsDir, name)
	if err != nil {
		return nil, err
	}
	pool, err := loadPool(certsDir)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

// EnsureServerConfig loads the control server config from certsDir,
// generating a CA, a server certificate and a probe client certificate when
// the directory holds none. Existing but unreadable files are an error
// rather than a reason to regenerate.
func EnsureServerConfig(certsDir, instance string, hosts ...string) (*cryptotls.Config, error) {
	exists := false
	for _, name := range []string{caName + ".crt", ServerName + ".crt", ServerName + ".key"} {
		if _, err := os.Stat(filepath.Join(certsDir, name)); !errors.Is(err, fs.ErrNotExist) {
			exists = true
			break
		}
	}

	if !exists {
		ca, err := GenerateCA(instance)
		if err != nil {
			return nil, err
		}
		server, err := GenerateServerCert(ca, ServerName, hosts...)
		if err != nil {
			return nil, err
		}
		client, err := GenerateClientCert(ca, ClientName)
		if err != nil {
			return nil, err
		}
		if err := Save(certsDir, ca, server, client); err != nil {
			return nil, err
		}
	}
	return ServerConfig(certsDir, ServerName)
}
