package rpc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sentrywatch/endpointagent/internal/config"
)

const signatureAlgHMACSHA256 = "hmac-sha256-v1"

// ErrMissingSignature is returned when a payload carries no signature and
// the active SigningConfig does not permit unsigned payloads.
var ErrMissingSignature = errors.New("rpc: payload is missing a signature")

// ErrSignatureInvalid is returned when a payload's signature does not
// verify against the configured secret, or names an algorithm or key id
// this agent does not accept.
var ErrSignatureInvalid = errors.New("rpc: signature verification failed")

// verifySignature checks a canonical payload against its accompanying
// signature envelope:
//
//  1. normalize: signature trimmed and lowercased (it is hex on the wire),
//     key id trimmed, algorithm trimmed and lowercased
//  2. if the signature is empty: accept iff unsigned payloads are allowed
//     or no local signing secret is configured; otherwise reject
//  3. if no local secret is configured but a signature is present, reject
//  4. if the algorithm is non-empty and not hmac-sha256-v1, reject
//  5. if a local key id is configured and the message's key id is
//     non-empty and differs, reject
//  6. compute HMAC-SHA-256 of the canonical payload under the local
//     secret and compare constant-time against the given signature
func verifySignature(cfg config.SigningConfig, canonical, sig, keyID, alg string) error {
	sig = strings.ToLower(strings.TrimSpace(sig))
	keyID = strings.TrimSpace(keyID)
	alg = strings.ToLower(strings.TrimSpace(alg))

	if sig == "" {
		if cfg.AllowUnsigned || cfg.Secret == "" {
			return nil
		}
		return ErrMissingSignature
	}
	if cfg.Secret == "" {
		return fmt.Errorf("%w: signed payload but no local signing secret configured", ErrSignatureInvalid)
	}
	if alg != "" && alg != signatureAlgHMACSHA256 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrSignatureInvalid, alg)
	}
	if cfg.KeyID != "" && keyID != "" && keyID != cfg.KeyID {
		return fmt.Errorf("%w: unknown key id %q", ErrSignatureInvalid, keyID)
	}

	want, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: signature is not valid hex: %v", ErrSignatureInvalid, err)
	}
	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(canonical))
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrSignatureInvalid
	}
	return nil
}

// VerifyPolicy verifies the signature envelope on an incoming Policy
// message against the agent's SigningConfig.
func VerifyPolicy(cfg config.SigningConfig, p PolicyMessage) error {
	return verifySignature(cfg, p.Canonical(), p.Signature, p.SignatureKeyID, p.SignatureAlg)
}

// VerifyCommand verifies the signature envelope on an incoming Command
// message against the agent's SigningConfig.
func VerifyCommand(cfg config.SigningConfig, c CommandMessage) error {
	return verifySignature(cfg, c.Canonical(), c.Signature, c.SignatureKeyID, c.SignatureAlg)
}

// SignPolicy computes the lowercase-hex signature for a PolicyMessage
// under cfg.Secret. Used by tests; production signatures are minted by the
// control plane, never by the agent.
func SignPolicy(cfg config.SigningConfig, p PolicyMessage) string {
	return sign(cfg, p.Canonical())
}

// SignCommand computes the lowercase-hex signature for a CommandMessage
// under cfg.Secret. See SignPolicy.
func SignCommand(cfg config.SigningConfig, c CommandMessage) string {
	return sign(cfg, c.Canonical())
}

func sign(cfg config.SigningConfig, canonical string) string {
	mac := hmac.New(sha256.New, []byte(cfg.Secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
