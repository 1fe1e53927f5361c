package wallet

import (
	"encoding/json"
	"errors"
	"fmt"

	"ehrchain/core/record"
	"ehrchain/core/storage"
)

const keyPrefix = "key:"

// Keystore keeps custodial actor wallets in the node's backend, sealed with the data key
// when one is configured.
type Keystore struct {
	backend storage.Backend
	sealer  *record.Sealer
}

// NewKeystore returns a keystore over backend. sealer may be nil.
func NewKeystore(backend storage.Backend, sealer *record.Sealer) *Keystore {
	return &Keystore{backend: backend, sealer: sealer}
}

// Store persists w under its ID, replacing any earlier wallet.
func (k *Keystore) Store(w *Wallet) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if k.sealer != nil {
		if data, err = k.sealer.Seal(data); err != nil {
			return fmt.Errorf("seal wallet %s: %w", w.ID, err)
		}
	}
	return k.backend.Put(keyPrefix+w.ID, data)
}

// LoadWallet returns the stored wallet for id.
func (k *Keystore) LoadWallet(id string) (*Wallet, error) {
	data, err := k.backend.Get(keyPrefix + id)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoWallet, id)
	}
	if err != nil {
		return nil, err
	}
	if k.sealer != nil {
		if data, err = k.sealer.Open(data); err != nil {
			return nil, fmt.Errorf("open wallet %s: %w", id, err)
		}
	}
	var w Wallet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode wallet %s: %w", id, err)
	}
	return &w, nil
}

// Signer loads the wallet for id and returns its signer.
func (k *Keystore) Signer(id string) (Signer, error) {
	w, err := k.LoadWallet(id)
	if err != nil {
		return nil, err
	}
	return w.Signer()
}
