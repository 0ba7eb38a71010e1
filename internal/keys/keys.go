package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidKeyFormat is returned when a registered public key matches
// none of the accepted encodings.
var ErrInvalidKeyFormat = errors.New("invalid public key format")

// parserStrategy is one tagged attempt at decoding a registered key.
// Strategies are tried in order; the first success wins.
type parserStrategy struct {
	name  string
	parse func(raw string) (*ecdsa.PublicKey, error)
}

var strategies = []parserStrategy{
	{name: "jwk", parse: parseJWK},
	{name: "pem", parse: parsePEM},
	{name: "base64-spki", parse: parseBareSPKI},
}

// ParsePublicKey decodes a registered public key. Accepted encodings,
// in order of attempt: an EC JSON Web Key, a PEM SubjectPublicKeyInfo
// block, and a bare base64 SPKI payload lacking PEM framing.
func ParsePublicKey(raw string) (*ecdsa.PublicKey, error) {
	var lastErr error
	for _, s := range strategies {
		key, err := s.parse(raw)
		if err == nil {
			return key, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, lastErr)
}

// VerifySignature checks an ECDSA-P256/SHA-256 signature in raw
// IEEE-P1363 (r||s) encoding over message. It never fails loudly: any
// decode or verification problem reports as false so callers can
// distinguish "bad key on record" (ParsePublicKey error) from
// "signature did not match".
func VerifySignature(pub *ecdsa.PublicKey, message, signatureBase64 string) bool {
	if pub == nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil {
		return false
	}
	if len(sig) == 0 || len(sig)%2 != 0 {
		return false
	}

	half := len(sig) / 2
	r := new(big.Int).SetBytes(sig[:half])
	s := new(big.Int).SetBytes(sig[half:])

	digest := sha256.Sum256([]byte(message))
	return ecdsa.Verify(pub, digest[:], r, s)
}

// Sign produces a raw IEEE-P1363 signature over message, base64
// encoded. Used by tests and the enrollment tooling.
func Sign(priv *ecdsa.PrivateKey, message string) (string, error) {
	digest := sha256.Sum256([]byte(message))
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return "", err
	}

	byteLen := (priv.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*byteLen)
	r.FillBytes(sig[:byteLen])
	s.FillBytes(sig[byteLen:])
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateKeyPair creates a P-256 key pair, returning the public key as
// PEM SPKI and the private key as PEM PKCS#8.
func GenerateKeyPair() (publicPEM, privatePEM string, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate key pair: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	return publicPEM, privatePEM, nil
}

type jwkKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func parseJWK(raw string) (*ecdsa.PublicKey, error) {
	var jwk jwkKey
	if err := json.Unmarshal([]byte(raw), &jwk); err != nil {
		return nil, fmt.Errorf("not a JWK: %w", err)
	}
	if jwk.Kty != "EC" {
		return nil, fmt.Errorf("unsupported JWK key type: %q", jwk.Kty)
	}
	if jwk.Crv != "" && jwk.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported JWK curve: %q", jwk.Crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK y coordinate: %w", err)
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, errors.New("JWK point is not on P-256")
	}
	return pub, nil
}

func parsePEM(raw string) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SPKI: %w", err)
	}

	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an EC public key: %T", parsed)
	}
	return pub, nil
}

// parseBareSPKI handles keys exported by browser WebCrypto clients: a
// base64 SPKI payload with no PEM framing. The payload is re-wrapped at
// 64-character line boundaries and parsed as PEM.
func parseBareSPKI(raw string) (*ecdsa.PublicKey, error) {
	compact := strings.Join(strings.Fields(raw), "")
	if compact == "" {
		return nil, errors.New("empty key data")
	}
	if _, err := base64.StdEncoding.DecodeString(compact); err != nil {
		return nil, fmt.Errorf("not base64 SPKI: %w", err)
	}

	var b strings.Builder
	b.WriteString("-----BEGIN PUBLIC KEY-----\n")
	for len(compact) > 64 {
		b.WriteString(compact[:64])
		b.WriteByte('\n')
		compact = compact[64:]
	}
	b.WriteString(compact)
	b.WriteString("\n-----END PUBLIC KEY-----\n")

	return parsePEM(b.String())
}
