package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnauthorized indicates the presented credential was rejected.
var ErrUnauthorized = errors.New("unauthorized")

// UserInfo describes an accepted credential.
type UserInfo interface {
	// UserID returns the subject, or "" when the credential carries none.
	UserID() string
	// Claims unmarshals the credential's claims into ref.
	Claims(ref any) error
}

// Authenticator decides whether a credential may open a session.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string { return u.sub }

func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

type opaque struct{}

// NewOpaque returns an Authenticator that accepts any non-blank credential.
func NewOpaque() Authenticator { return opaque{} }

func (opaque) CheckAuthentication(_ context.Context, tok string) (UserInfo, error) {
	if strings.TrimSpace(tok) == "" {
		return nil, errors.Join(ErrUnauthorized, errors.New("empty credential"))
	}
	return &userInfo{}, nil
}
