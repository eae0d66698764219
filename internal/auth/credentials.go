package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Credential is one configured login. Only the bcrypt hash is kept.
type Credential struct {
	Username string
	Hash     []byte
	Role     Role
}

// HashPassword hashes password with the given bcrypt cost.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// NewCredential builds a credential from either a plaintext password or a
// precomputed bcrypt hash. The hash wins when both are set.
func NewCredential(username, password, hash string, role Role, cost int) (Credential, error) {
	c := Credential{Username: username, Role: role}
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return Credential{}, fmt.Errorf("%s password hash: %w", role, err)
		}
		c.Hash = []byte(hash)
	case password != "":
		h, err := HashPassword(password, cost)
		if err != nil {
			return Credential{}, err
		}
		c.Hash = h
	default:
		return Credential{}, fmt.Errorf("%s credential has no password", role)
	}
	return c, nil
}

// Authenticator checks a username/password pair against the configured
// credentials. The matched credential alone decides the role.
type Authenticator struct {
	creds []Credential
	dummy []byte
}

func NewAuthenticator(creds ...Credential) *Authenticator {
	// Compared against when no username matches so unknown users cost the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)
	return &Authenticator{creds: creds, dummy: dummy}
}

func (a *Authenticator) Authenticate(username, password string) (Role, error) {
	var match *Credential
	for i := range a.creds {
		if subtle.ConstantTimeCompare([]byte(a.creds[i].Username), []byte(username)) == 1 {
			match = &a.creds[i]
		}
	}
	if match == nil {
		_ = bcrypt.CompareHashAndPassword(a.dummy, []byte(password))
		return RoleAnonymous, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(match.Hash, []byte(password)); err != nil {
		return RoleAnonymous, ErrInvalidCredentials
	}
	return match.Role, nil
}
