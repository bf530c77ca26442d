package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/model"
)

const issuer = "judgeboard"

// Session is what a successful login returns.
type Session struct {
	Token       string
	JudgeID     string
	DisplayName string
	ExpiresAt   time.Time
}

// Authenticator checks judge credentials and signs HS256 identity tokens.
type Authenticator struct {
	store  repository.Store
	hasher BcryptHasher
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	dummyOnce sync.Once
	dummy     string
}

// NewAuthenticator returns an Authenticator signing with secret.
func NewAuthenticator(store repository.Store, hasher BcryptHasher, secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{
		store:  store,
		hasher: hasher,
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides time.Now for issuing and verifying tokens.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// Login verifies username/password for an active judge and issues a token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Session, error) {
	var judge model.Judge
	err := a.store.View(ctx, func(r repository.Reader) error {
		var err error
		judge, err = r.JudgeByUsername(strings.TrimSpace(username))
		return err
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Keep the timing of unknown users close to a wrong password.
		a.hasher.Compare(a.dummyHash(), password)
		return Session{}, ErrInvalidCredentials
	case err != nil:
		return Session{}, fmt.Errorf("lookup judge: %w", err)
	}
	if !a.hasher.Compare(judge.PasswordHash, password) || !judge.Active {
		return Session{}, ErrInvalidCredentials
	}

	now := a.now()
	exp := now.Add(a.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   judge.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, JudgeID: judge.ID, DisplayName: judge.DisplayName, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify parses a token and returns the identity it carries.
func (a *Authenticator) Verify(token string) (model.Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return model.Identity{}, ErrTokenExpired
	case err != nil:
		return model.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	case claims.Subject == "":
		return model.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return model.Identity{JudgeID: claims.Subject}, nil
}

func (a *Authenticator) dummyHash() string {
	a.dummyOnce.Do(func() {
		a.dummy, _ = a.hasher.Hash("judgeboard-placeholder")
	})
	return a.dummy
}
