// gencerts writes a single self-signed server certificate for local
// qmanagerd runs. qmanager authenticates clients via the appkey
// allow-list rather than mTLS, so this only ever needs one keypair, not
// a full CA/server/client chain.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

var certDir = "certs/"

func main() {
	if _, err := os.Stat(certDir); os.IsNotExist(err) {
		os.Mkdir(certDir, 0755)
	}

	certAbsPath, keyAbsPath := serverCert()

	fmt.Println("Certificate generated successfully.")
	fmt.Printf(`
    To use the generated certificate, set the following environment variables:

        export QMANAGER_SERVER_CERT_FILE=%s
        export QMANAGER_SERVER_KEY_FILE=%s
        export QMANAGER_PORT=7654

`, certAbsPath, keyAbsPath)
}

var maxInt128 = new(big.Int).Lsh(big.NewInt(1), 128)

func serverCert() (certAbsPath, keyAbsPath string) {
	private, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		fmt.Printf("failed to generate ECDSA P256 key pair: %v\n", err)
		os.Exit(1)
	}

	serialNumber, err := rand.Int(rand.Reader, maxInt128)
	if err != nil {
		fmt.Printf("failed to generate serial number: %v\n", err)
		os.Exit(1)
	}

	certTemplate := x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"qmanager"}, CommonName: "localhost"},
		Issuer:                pkix.Name{Organization: []string{"qmanager"}, CommonName: "localhost"},
		SerialNumber:          serialNumber,
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	// Self-signed: the template is its own parent.
	certBytes, err := x509.CreateCertificate(rand.Reader, &certTemplate, &certTemplate, &private.PublicKey, private)
	if err != nil {
		fmt.Printf("failed to create server certificate: %v\n", err)
		os.Exit(1)
	}

	certFile, err := os.Create(filepath.Join(certDir, "qmanager_tls.crt"))
	if err != nil {
		fmt.Printf("failed to create cert file: %v\n", err)
		os.Exit(1)
	}
	defer certFile.Close()
	if err := pem.Encode(certFile, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes}); err != nil {
		fmt.Printf("failed to write cert file: %v\n", err)
		os.Exit(1)
	}

	keyFile, err := os.Create(filepath.Join(certDir, "qmanager_tls.key"))
	if err != nil {
		fmt.Printf("failed to create key file: %v\n", err)
		os.Exit(1)
	}
	defer keyFile.Close()
	keyBytes, err := x509.MarshalECPrivateKey(private)
	if err != nil {
		fmt.Printf("failed to marshal private key: %v\n", err)
		os.Exit(1)
	}
	if err := pem.Encode(keyFile, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		fmt.Printf("failed to write key file: %v\n", err)
		os.Exit(1)
	}

	certAbsPath, err = filepath.Abs(certFile.Name())
	if err != nil {
		fmt.Printf("failed to get absolute path of cert file: %v\n", err)
		os.Exit(1)
	}
	keyAbsPath, err = filepath.Abs(keyFile.Name())
	if err != nil {
		fmt.Printf("failed to get absolute path of key file: %v\n", err)
		os.Exit(1)
	}
	return certAbsPath, keyAbsPath
}
