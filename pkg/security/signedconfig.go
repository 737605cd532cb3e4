package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/ztgateway/pkg/types"
)

// signedConfigSeparator frames payload and signature so the verifier
// can split the token without parsing JSON first.
const signedConfigSeparator = "."

// SignConfig produces a token: base64(payload) + "." + base64(signature),
// where signature is an RSA-PKCS1v15-SHA256 signature over the raw
// (unencoded) JSON payload bytes.
func SignConfig(key *rsa.PrivateKey, payload types.SignedConfigPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal signed-config payload: %w", err)
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}

	encPayload := base64.StdEncoding.EncodeToString(data)
	encSig := base64.StdEncoding.EncodeToString(sig)
	return encPayload + signedConfigSeparator + encSig, nil
}

// VerifyConfig splits token into payload and signature, verifies the
// signature against pub, and rejects expired payloads.
func VerifyConfig(pub *rsa.PublicKey, token string) (*types.SignedConfigPayload, error) {
	parts := strings.SplitN(token, signedConfigSeparator, 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed signed-config token")
	}

	data, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	var payload types.SignedConfigPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if time.Now().After(payload.Expires) {
		return nil, fmt.Errorf("signed-config token expired at %s", payload.Expires)
	}
	return &payload, nil
}
