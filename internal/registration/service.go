package registration

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	DB     DB
	Tokens *Tokens
}

// Service resolves participants from the registrations table.
type Service struct {
	db     DB
	tokens *Tokens
}

func NewService(c Config) *Service {
	return &Service{
		db:     c.DB,
		tokens: c.Tokens,
	}
}

const selectParticipant = `
SELECT participant_id, full_name, email, class_level, courses, payment_status, password_hash
FROM registrations`

func (s *Service) GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error) {
	if _, err := uuid.Parse(participantID); err != nil {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found: participant=%s", participantID))
	}

	p, _, err := s.scanParticipant(ctx, selectParticipant+` WHERE participant_id = $1;`, participantID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	Token       string
	Participant domain.Participant
}

// Login checks the credentials of a registered participant and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	invalid := errors.New(errors.CodeUnauthenticated, errors.WithMessagef("invalid email or password"))

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, invalid
	}

	p, hash, err := s.scanParticipant(ctx, selectParticipant+` WHERE lower(email) = $1;`, email)
	if err != nil {
		if errors.Convert(err).Code == errors.CodeNotFound {
			return nil, invalid
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	tok, err := s.tokens.Issue(*p)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResponse{Token: tok, Participant: *p}, nil
}

func (s *Service) scanParticipant(ctx context.Context, stmt string, arg string) (*domain.Participant, string, error) {
	var (
		p    domain.Participant
		id   uuid.UUID
		hash string
	)
	err := s.db.QueryRow(ctx, stmt, arg).Scan(&id, &p.FullName, &p.Email, &p.ClassLevel, &p.Courses, &p.PaymentStatus, &hash)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, "", errors.New(errors.CodeNotFound, errors.WithMessagef("participant not found"))
	}
	if err != nil {
		return nil, "", fmt.Errorf("get participant: %w", err)
	}

	p.ParticipantID = id.String()
	return &p, hash, nil
}

// HashPassword returns the bcrypt hash stored for a registration.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Tokens returns the issuer used by Login, for verifying the tokens it hands out.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}
