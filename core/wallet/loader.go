package wallet

import "errors"

// ErrNoWallet is returned when no key material is stored for an actor.
var ErrNoWallet = errors.New("wallet not found")

// Wallet is an actor's signing key pair. PrivateKey never leaves the node.
type Wallet struct {
	ID         string `json:"id"`
	Algorithm  string `json:"algorithm"`
	PublicKey  []byte `json:"publicKey"`
	PrivateKey []byte `json:"privateKey"`
}

// Signer builds a Signer from the wallet's private key.
func (w *Wallet) Signer() (Signer, error) {
	return SignerFromKey(w.Algorithm, w.PrivateKey)
}
