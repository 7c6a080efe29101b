package registration

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
)

const issuer = "olympiad"

type claims struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ClassLevel string `json:"class_level,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 access tokens that carry the participant identity.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *Tokens) Issue(p domain.Participant) (string, error) {
	now := t.now()
	c := claims{
		Name:       p.FullName,
		Email:      p.Email,
		ClassLevel: p.ClassLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.ParticipantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Parse verifies a token and returns the participant it was issued for.
func (t *Tokens) Parse(token string) (*domain.Participant, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid access token"),
			errors.WithCause(fmt.Errorf("parse token: %w", err)),
		)
	}

	return &domain.Participant{
		ParticipantID: c.Subject,
		FullName:      c.Name,
		Email:         c.Email,
		ClassLevel:    c.ClassLevel,
	}, nil
}
