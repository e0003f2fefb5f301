package billing

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"

	"github.com/elliotchance/phpserialize"
)

// signatureField carries the detached signature in legacy payloads.
const signatureField = "p_signature"

// SignatureVerifier authenticates legacy-protocol payloads. The legacy
// provider signs the PHP-serialized, key-sorted payload with RSA over a
// SHA-1 digest; that exact byte format is the signed message.
type SignatureVerifier struct {
	key *rsa.PublicKey
}

// NewSignatureVerifier creates a verifier bound to the environment's
// provider public key.
func NewSignatureVerifier(key *rsa.PublicKey) *SignatureVerifier {
	return &SignatureVerifier{key: key}
}

// ParsePublicKey decodes a PEM-encoded PKIX RSA public key.
func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key data")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %v", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return key, nil
}

// Verify checks the detached signature of a legacy payload. It consumes
// and removes the signature field from the payload. Verification failure
// must short-circuit the request before any persistence mutation.
func (v *SignatureVerifier) Verify(payload map[string]interface{}) bool {
	rawSig, ok := payload[signatureField].(string)
	if !ok || rawSig == "" {
		return false
	}
	delete(payload, signatureField)

	sig, err := base64.StdEncoding.DecodeString(rawSig)
	if err != nil {
		return false
	}

	message, err := serializeSigned(payload)
	if err != nil {
		return false
	}

	digest := sha1.Sum(message)
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA1, digest[:], sig) == nil
}

// serializeSigned reproduces the provider's signed message: fields sorted
// byte-wise ascending by key, values normalized to strings, encoded as a
// PHP associative array. The envelope is written explicitly so field
// order is under our control, not map iteration order.
func serializeSigned(payload map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "a:%d:{", len(keys))
	for _, k := range keys {
		kb, err := phpserialize.Marshal(k, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize field name %q: %v", k, err)
		}
		vb, err := phpserialize.Marshal(normalizeValue(payload[k]), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize field %q: %v", k, err)
		}
		buf.Write(kb)
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeValue flattens non-string values the way the provider does
// before signing: arrays become comma-joined strings, everything else
// non-string becomes its JSON encoding.
func normalizeValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ",")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
