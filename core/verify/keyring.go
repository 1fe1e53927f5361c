package verify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"ehrchain/core/block"
	"ehrchain/core/record"
	"ehrchain/core/wallet"
)

// actorKey is the part of an actor event the verifier needs.
type actorKey struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	PublicKey []byte `json:"publicKey"`
	Algorithm string `json:"algorithm"`
}

const roleAdmin = "admin"

// keyring tracks the public key registered for each actor as the chain is walked.
type keyring map[string]actorKey

func decodeActor(b *block.Block) (actorKey, error) {
	env, err := record.DecodeEnvelope(b.Payload)
	if err != nil {
		return actorKey{}, err
	}
	var k actorKey
	if err := json.Unmarshal(env.Body, &k); err != nil {
		return actorKey{}, fmt.Errorf("decode actor body: %w", err)
	}
	if k.ID == "" || len(k.PublicKey) == 0 {
		return actorKey{}, errors.New("actor event without id or key")
	}
	return k, nil
}

// checkSignature verifies a non-genesis block's signature against the signer's registered key.
// An actor event that registers its own signer is checked against the key it carries.
func (kr keyring) checkSignature(b *block.Block) error {
	if b.Signer == "" || len(b.Signature) == 0 {
		return errors.New("missing signature")
	}
	key, ok := kr[b.Signer]
	if !ok && b.Kind == block.KindActor {
		self, err := decodeActor(b)
		if err != nil {
			return err
		}
		if self.ID == b.Signer {
			key, ok = self, true
		}
	}
	if !ok {
		return fmt.Errorf("signer %s has no registered key", b.Signer)
	}
	alg, err := wallet.NormalizeAlgorithm(key.Algorithm)
	if err != nil || alg != b.SigAlgorithm {
		return fmt.Errorf("signature algorithm %q does not match signer key", b.SigAlgorithm)
	}
	digest, err := b.Digest()
	if err != nil {
		return err
	}
	if !wallet.Verify(alg, key.PublicKey, digest, b.Signature) {
		return errors.New("invalid signature")
	}
	switch b.Kind {
	case block.KindActor:
		return kr.checkActor(b)
	case block.KindGrant, block.KindRevoke:
		return checkPatientSigned(b)
	}
	return nil
}

func (kr keyring) isAdmin(id string) bool {
	return kr[id].Role == roleAdmin
}

func (kr keyring) hasAdmin() bool {
	for _, k := range kr {
		if k.Role == roleAdmin {
			return true
		}
	}
	return false
}

// checkActor enforces who may write an actor event. A new actor registers itself, or is
// registered by an admin; only the first admin may register itself as admin. Later events keep
// the registered key, and only an admin may change a role or sign for someone else.
func (kr keyring) checkActor(b *block.Block) error {
	k, err := decodeActor(b)
	if err != nil {
		return err
	}
	prev, known := kr[k.ID]
	if !known {
		switch {
		case b.Signer != k.ID && !kr.isAdmin(b.Signer):
			return fmt.Errorf("actor %s registered by %s", k.ID, b.Signer)
		case b.Signer == k.ID && k.Role == roleAdmin && kr.hasAdmin():
			return fmt.Errorf("actor %s registered itself as admin", k.ID)
		}
		return nil
	}
	if !bytes.Equal(prev.PublicKey, k.PublicKey) || prev.Algorithm != k.Algorithm {
		return fmt.Errorf("actor %s key changed", k.ID)
	}
	if (b.Signer != k.ID || prev.Role != k.Role) && !kr.isAdmin(b.Signer) {
		return fmt.Errorf("actor %s role changed by %s", k.ID, b.Signer)
	}
	return nil
}

// checkPatientSigned requires grant and revoke events to be signed by the patient they name.
func checkPatientSigned(b *block.Block) error {
	env, err := record.DecodeEnvelope(b.Payload)
	if err != nil {
		return err
	}
	var body struct {
		PatientID string `json:"patientId"`
	}
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return fmt.Errorf("decode %s body: %w", b.Kind, err)
	}
	if body.PatientID != b.Signer {
		return fmt.Errorf("%s for %s signed by %s", b.Kind, body.PatientID, b.Signer)
	}
	return nil
}

// observe records the key carried by an actor event.
func (kr keyring) observe(b *block.Block) error {
	if b.Kind != block.KindActor {
		return nil
	}
	k, err := decodeActor(b)
	if err != nil {
		return err
	}
	kr[k.ID] = k
	return nil
}
