package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Supported signature algorithms.
const (
	AlgEd25519   = "Ed25519"
	AlgSecp256k1 = "Secp256k1"
)

// ErrUnsupportedAlgorithm is returned for algorithm names other than the supported ones.
var ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

// Signer signs 32-byte digests on behalf of one actor.
type Signer interface {
	Algorithm() string
	PublicKey() []byte
	Sign(digest []byte) ([]byte, error)
}

// NormalizeAlgorithm maps user input to a canonical algorithm name. Empty means Ed25519.
func NormalizeAlgorithm(alg string) (string, error) {
	switch strings.ToLower(alg) {
	case "", "ed25519":
		return AlgEd25519, nil
	case "secp256k1", "ecdsa":
		return AlgSecp256k1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

func (s *Ed25519Signer) Algorithm() string { return AlgEd25519 }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.priv.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Sign(digest []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, digest), nil
}

// Secp256k1Signer produces DER-encoded ECDSA signatures over secp256k1.
type Secp256k1Signer struct {
	priv *btcec.PrivateKey
}

func (s *Secp256k1Signer) Algorithm() string { return AlgSecp256k1 }

// PublicKey returns the compressed public key.
func (s *Secp256k1Signer) PublicKey() []byte {
	return s.priv.PubKey().SerializeCompressed()
}

func (s *Secp256k1Signer) Sign(digest []byte) ([]byte, error) {
	return ecdsa.Sign(s.priv, digest).Serialize(), nil
}

// Generate creates a new wallet for id using alg.
func Generate(id, alg string) (*Wallet, error) {
	alg, err := NormalizeAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	w := &Wallet{ID: id, Algorithm: alg}
	switch alg {
	case AlgEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		w.PublicKey, w.PrivateKey = pub, priv
	case AlgSecp256k1:
		priv, err := btcec.NewPrivateKey()
		if err != nil {
			return nil, err
		}
		w.PublicKey, w.PrivateKey = priv.PubKey().SerializeCompressed(), priv.Serialize()
	}
	return w, nil
}

// SignerFromKey rebuilds a signer from stored private key bytes.
func SignerFromKey(alg string, priv []byte) (Signer, error) {
	alg, err := NormalizeAlgorithm(alg)
	if err != nil {
		return nil, err
	}
	switch alg {
	case AlgEd25519:
		if len(priv) != ed25519.PrivateKeySize {
			return nil, errors.New("invalid Ed25519 private key size")
		}
		return &Ed25519Signer{priv: ed25519.PrivateKey(priv)}, nil
	default:
		if len(priv) != btcec.PrivKeyBytesLen {
			return nil, errors.New("invalid secp256k1 private key size")
		}
		key, _ := btcec.PrivKeyFromBytes(priv)
		return &Secp256k1Signer{priv: key}, nil
	}
}

// Verify checks sig over digest with pub. Unknown algorithms and malformed keys never verify.
func Verify(alg string, pub, digest, sig []byte) bool {
	alg, err := NormalizeAlgorithm(alg)
	if err != nil {
		return false
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
	default:
		key, err := btcec.ParsePubKey(pub)
		if err != nil {
			return false
		}
		parsed, err := ecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		return parsed.Verify(digest, key)
	}
}
