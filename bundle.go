package authz

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Checksum hashes the semantically relevant fields of the policy. Two
// policies with the same checksum authorize identically.
func (p *Policy) Checksum() string {
	data, _ := json.Marshal(struct {
		Effect     Effect
		Actions    []string
		Resources  []string
		Subjects   []string
		Conditions map[string]PolicyCondition
		Priority   int
	}{
		Effect:     p.Effect,
		Actions:    p.Actions,
		Resources:  p.Resources,
		Subjects:   p.Subjects,
		Conditions: p.Conditions,
		Priority:   p.Priority,
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// SignedPolicyBundle carries a policy set with a per-policy signature so
// consumers can verify integrity before applying it.
type SignedPolicyBundle struct {
	Policies   []*Policy         `json:"policies"`
	Signatures map[string]string `json:"signatures"` // policy ID -> base64(sig)
	Meta       map[string]any    `json:"meta,omitempty"`
}

// SignPolicy returns an ed25519 signature (base64) over the policy's ID and
// checksum.
func SignPolicy(priv ed25519.PrivateKey, p *Policy) (string, error) {
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       p.ID,
		Checksum: p.Checksum(),
	})
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyPolicySignature checks signature against the policy checksum.
func VerifyPolicySignature(pub ed25519.PublicKey, p *Policy, sigB64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(struct {
		ID       string
		Checksum string
	}{
		ID:       p.ID,
		Checksum: p.Checksum(),
	})
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, data, sig), nil
}

// SignBundle signs each policy with priv and returns a SignedPolicyBundle
func SignBundle(priv ed25519.PrivateKey, policies []*Policy) (*SignedPolicyBundle, error) {
	b := &SignedPolicyBundle{Policies: policies, Signatures: make(map[string]string)}
	for _, p := range policies {
		s, err := SignPolicy(priv, p)
		if err != nil {
			return nil, err
		}
		b.Signatures[p.ID] = s
	}
	return b, nil
}

// VerifyBundle verifies all signatures using given public key
func VerifyBundle(pub ed25519.PublicKey, b *SignedPolicyBundle) (bool, error) {
	for _, p := range b.Policies {
		sig, ok := b.Signatures[p.ID]
		if !ok {
			return false, fmt.Errorf("missing signature for policy %s", p.ID)
		}
		ok, err := VerifyPolicySignature(pub, p, sig)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("invalid signature for policy %s", p.ID)
		}
	}
	return true, nil
}
