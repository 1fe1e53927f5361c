package access

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is what an actor is allowed to be on the ledger.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Profile holds the registration details shown on the dashboards. Patients fill the first three
// fields, doctors the last three.
type Profile struct {
	Age            int    `json:"age,omitempty"`
	Gender         string `json:"gender,omitempty"`
	BloodGroup     string `json:"bloodGroup,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	Hospital       string `json:"hospital,omitempty"`
	License        string `json:"license,omitempty"`
}

// Actor is a registered identity. It is created by an actor ledger event and never removed;
// a later actor event for the same ID replaces role and profile.
type Actor struct {
	ID           string    `json:"id"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	Profile      Profile   `json:"profile"`
	PublicKey    []byte    `json:"publicKey"`
	Algorithm    string    `json:"algorithm"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Public strips credential material.
func (a Actor) Public() Actor {
	a.PasswordHash = ""
	return a
}

// ErrBadCredentials is returned by CheckPassword for any mismatch.
var ErrBadCredentials = errors.New("invalid credentials")

// HashPassword bcrypt-hashes a password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword compares password against the actor's stored hash.
func (a Actor) CheckPassword(password string) error {
	if a.PasswordHash == "" {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}
