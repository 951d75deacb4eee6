package core

// Signature algorithm implementations for Veridian.
//
// Adapted from the teacher's wallet.go: that file built a full HD wallet
// (ed25519 keys, SLIP-0010 derivation, BIP-39 mnemonics, ripemd160
// addresses) for an end-user wallet product. Nothing in this engine
// exercises mnemonic recovery or hierarchical derivation — callers are
// identified by a raw public key carried directly in the request (§6's
// Signature collaborator), not by a wallet — so only the ed25519 verify
// primitive survives, generalized into the SignatureAlgorithm interface
// spec.md §6 names.
//
// Import hygiene preserved from the original: this file depends only on
// the standard crypto library and logrus, staying at the lowest tier.

import (
	"crypto/ed25519"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SignatureAlgorithm verifies a signature over a message for a declared
// public key, per §6. The node verifies every request with the one
// algorithm in BuilderDeps.SigAlgo; a request's Signer supplies only the
// public key and does not select an algorithm.
type SignatureAlgorithm interface {
	Name() string
	Verify(publicKey, message, signature []byte) (bool, error)
}

// Ed25519Algorithm is the default signature algorithm for signed,
// non-initial requests.
type Ed25519Algorithm struct{}

func (Ed25519Algorithm) Name() string { return "ed25519" }

func (Ed25519Algorithm) Verify(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("ed25519 verify: bad public key length %d", len(publicKey))
	}
	if len(signature) != ed25519.SignatureSize {
		logrus.WithField("signature_len", len(signature)).Warn("signature: wrong-length ed25519 signature rejected")
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
}

// EmptyAlgorithm always validates, used by the unsigned faucet / initial
// requests where there is no caller to authenticate.
type EmptyAlgorithm struct{}

func (EmptyAlgorithm) Name() string { return "empty" }

func (EmptyAlgorithm) Verify(publicKey, message, signature []byte) (bool, error) {
	return true, nil
}

// VerifyRequestSignature verifies r's signature against signerPublicKey
// using algo, over r's canonical encoding with the signature erased — the
// same canonicalization TRHash uses, per §3's "signature computed over the
// canonical encoding with the signature field omitted."
func VerifyRequestSignature(algo SignatureAlgorithm, r NonInitialRequest, signerPublicKey []byte) (bool, error) {
	canon := r.WithoutSignature()
	body, err := EncodeRequest(canon)
	if err != nil {
		return false, fmt.Errorf("verify request signature: %w", err)
	}
	return algo.Verify(signerPublicKey, body, r.GetSignature())
}
