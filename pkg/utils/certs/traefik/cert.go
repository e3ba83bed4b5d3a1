// Package traefik extracts TLS certificates from a traefik acme.json file.
// This lets the service reuse certificates traefik already maintains when
// both run on the same host.
package traefik

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

type certEntry struct {
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// GetCertFromTraefik reads a traefik acme.json file and returns the
// certificate stored for the given domain.
func GetCertFromTraefik(file, domain string) (tls.Certificate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("reading %s: %w", file, err)
	}
	return GetCertificate(string(data), domain)
}

// GetCertificate extracts the certificate for domain from acme.json content.
func GetCertificate(jsonData, domain string) (tls.Certificate, error) {
	certData, keyData, err := getCertData(jsonData, domain)
	if err != nil {
		return tls.Certificate{}, err
	}
	decodedCert, err := base64.StdEncoding.DecodeString(certData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding certificate: %w", err)
	}
	decodedKey, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding key: %w", err)
	}
	return tls.X509KeyPair(decodedCert, decodedKey)
}

// acme.json nests certificates below the resolver name, so the lookup
// searches any depth for an entry matching the main domain.
func getCertData(jsonData, domain string) (cert, key string, err error) {
	obj, err := oj.ParseString(jsonData)
	if err != nil {
		return "", "", fmt.Errorf("parsing acme data: %w", err)
	}

	jPath := fmt.Sprintf(`$..Certificates[?(@.domain.main == %q)]`, domain)
	path, err := jp.ParseString(jPath)
	if err != nil {
		return "", "", err
	}
	res := path.Get(obj)
	if len(res) == 0 {
		return "", "", fmt.Errorf("no certificate for domain %s", domain)
	}

	entry := certEntry{}
	if err := oj.Unmarshal([]byte(oj.JSON(res[0])), &entry); err != nil {
		return "", "", err
	}
	return entry.Certificate, entry.Key, nil
}
