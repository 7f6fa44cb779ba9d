package srk

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// TLSFiles names the certificate and key used to secure the storage channel.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	// Hosts go into the subject alternative names of a generated certificate.
	Hosts []string
}

func (f TLSFiles) requireCertificates() error {
	_, errCertificate := os.Stat(f.CertFile)
	_, errKey := os.Stat(f.KeyFile)
	if os.IsNotExist(errCertificate) || os.IsNotExist(errKey) {
		return f.createCertificates()
	}
	return nil
}

func newCertificateTemplate() (x509.Certificate, error) {
	var notBefore = time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return x509.Certificate{}, errors.Wrap(err, "Failed to generate serial number")
	}

	return x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Serverless Research Kit"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
	}, nil
}

// createCertificates writes a self-signed server certificate. It is its own
// CA so that clients can trust it by loading CertFile.
func (f TLSFiles) createCertificates() error {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}

	template, err := newCertificateTemplate()
	if err != nil {
		return err
	}
	template.IsCA = true
	template.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}

	hosts := f.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1"}
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return err
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return err
	}

	if err := writePEM(f.CertFile, "CERTIFICATE", certBytes, 0644); err != nil {
		return err
	}
	return writePEM(f.KeyFile, "PRIVATE KEY", keyBytes, 0600)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "Failed to create certificate directory")
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LoadCertificates loads the server key pair, generating a self-signed one
// first if either file is missing.
func LoadCertificates(f TLSFiles) (*tls.Certificate, error) {
	if err := f.requireCertificates(); err != nil {
		return nil, errors.Wrap(err, "Failed to create certificates")
	}
	cert, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to load key pair %s", f.CertFile)
	}
	return &cert, nil
}
