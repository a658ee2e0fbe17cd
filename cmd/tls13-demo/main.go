//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

// The tls13-demo program runs a loopback TLS 1.3 handshake between an
// in-process client and server over net.Pipe, generating a throwaway
// ECDSA P-256 certificate for the server, and exchanges one line of
// application data to prove the engine works end to end.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net"
	"time"

	"github.com/markkurossi/tls13/tls13"
)

func main() {
	group := flag.String("group", "x25519", "key exchange group: x25519, secp256r1, secp384r1, secp521r1")
	suite := flag.String("suite", "aes128gcmsha256", "cipher suite: aes128gcmsha256, aes256gcmsha384, chacha20poly1305sha256")
	message := flag.String("message", "ping", "application data string sent from client to server")
	verbose := flag.Bool("v", false, "trace handshake progress")
	flag.Parse()

	g, err := parseGroup(*group)
	if err != nil {
		log.Fatalf("tls13-demo: %v", err)
	}
	cs, err := parseSuite(*suite)
	if err != nil {
		log.Fatalf("tls13-demo: %v", err)
	}

	certDER, priv, err := generateLeafCertificate()
	if err != nil {
		log.Fatalf("tls13-demo: generate certificate: %v", err)
	}

	clientConn, serverConn := net.Pipe()

	clientCfg := &tls13.Config{
		Mode:             tls13.ModeClient,
		CipherSuites:     []tls13.CipherSuite{cs},
		Groups:           []tls13.NamedGroup{g},
		SignatureSchemes: []tls13.SignatureScheme{tls13.SignatureSchemeEcdsaSecp256r1Sha256},
		Trace:            *verbose,
	}
	serverCfg := &tls13.Config{
		Mode:             tls13.ModeServer,
		CipherSuites:     []tls13.CipherSuite{cs},
		Groups:           []tls13.NamedGroup{g},
		SignatureSchemes: []tls13.SignatureScheme{tls13.SignatureSchemeEcdsaSecp256r1Sha256},
		Certificates:     [][]byte{certDER},
		Signer:           priv,
		SignatureAlg:     tls13.SignatureSchemeEcdsaSecp256r1Sha256,
		Trace:            *verbose,
	}

	clientCtx, err := tls13.NewContext(clientCfg, &pipeCallbacks{conn: clientConn})
	if err != nil {
		log.Fatalf("tls13-demo: new client context: %v", err)
	}
	serverCtx, err := tls13.NewContext(serverCfg, &pipeCallbacks{conn: serverConn})
	if err != nil {
		log.Fatalf("tls13-demo: new server context: %v", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		_, err := serverCtx.ServerHandshake()
		serverDone <- err
	}()

	if _, err := clientCtx.ClientHandshake(); err != nil {
		log.Fatalf("tls13-demo: client handshake: %v", err)
	}
	if err := <-serverDone; err != nil {
		log.Fatalf("tls13-demo: server handshake: %v", err)
	}
	fmt.Println("handshake complete")

	serverRead := make(chan string, 1)
	serverErr := make(chan error, 1)
	go func() {
		data, _, err := serverCtx.ReadApplicationData()
		if err != nil {
			serverErr <- err
			return
		}
		serverRead <- string(data)
	}()

	if _, err := clientCtx.WriteApplicationData([]byte(*message)); err != nil {
		log.Fatalf("tls13-demo: write application data: %v", err)
	}

	select {
	case got := <-serverRead:
		fmt.Printf("server received: %q\n", got)
	case err := <-serverErr:
		log.Fatalf("tls13-demo: server read application data: %v", err)
	}

	if err := clientCtx.Close(); err != nil {
		log.Printf("tls13-demo: client close: %v", err)
	}
}

// pipeCallbacks adapts a net.Conn to tls13.Callbacks, printing alerts
// and discarding post-handshake handshake messages (this demo never
// issues session tickets or key updates).
type pipeCallbacks struct {
	conn net.Conn
}

func (c *pipeCallbacks) WireRead(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *pipeCallbacks) WireWrite(p []byte) (int, error) { return c.conn.Write(p) }
func (c *pipeCallbacks) Alert(level tls13.AlertLevel, desc tls13.AlertDescription) {
	fmt.Printf("alert: level=%v desc=%v\n", level, desc)
}
func (c *pipeCallbacks) PHHRecv(ht tls13.HandshakeType, body []byte) {}
func (c *pipeCallbacks) PHHSent(ht tls13.HandshakeType)              {}

func parseGroup(name string) (tls13.NamedGroup, error) {
	switch name {
	case "x25519":
		return tls13.GroupX25519, nil
	case "secp256r1":
		return tls13.GroupSecp256r1, nil
	case "secp384r1":
		return tls13.GroupSecp384r1, nil
	case "secp521r1":
		return tls13.GroupSecp521r1, nil
	default:
		return 0, fmt.Errorf("unknown group %q", name)
	}
}

func parseSuite(name string) (tls13.CipherSuite, error) {
	switch name {
	case "aes128gcmsha256":
		return tls13.CipherSuiteAES128GCMSHA256, nil
	case "aes256gcmsha384":
		return tls13.CipherSuiteAES256GCMSHA384, nil
	case "chacha20poly1305sha256":
		return tls13.CipherSuiteChaCha20Poly1305SHA256, nil
	default:
		return 0, fmt.Errorf("unknown cipher suite %q", name)
	}
}

// generateLeafCertificate produces a throwaway self-signed ECDSA
// P-256 certificate, adapted from the teacher's cmd/ca/main.go (which
// wrote its key pair and certificate to disk; this demo keeps them
// in memory for a single loopback run).
func generateLeafCertificate() ([]byte, *ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial number: %w", err)
	}

	template := x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		PublicKeyAlgorithm: x509.ECDSA,
		SerialNumber:       serialNumber,
		Subject: pkix.Name{
			Organization: []string{"tls13-demo"},
			CommonName:   "localhost",
		},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	return der, priv, nil
}
