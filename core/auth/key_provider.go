package auth

import "errors"

// KeyProvider returns the HMAC key a token with key ID kid was signed with.
type KeyProvider interface {
	GetKey(kid string) ([]byte, error)
}

// StaticKeyProvider serves a single secret for every key ID.
type StaticKeyProvider struct {
	Secret []byte
}

func (s StaticKeyProvider) GetKey(kid string) ([]byte, error) {
	if len(s.Secret) == 0 {
		return nil, errors.New("no signing key set")
	}
	return s.Secret, nil
}
