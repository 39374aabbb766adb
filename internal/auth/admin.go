package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password does not meet requirements")
)

// Operator is a single named admin principal allowed to mutate policy and
// view evidence. There is no self-service registration — operators are
// provisioned out of band and their bcrypt hash lives in configuration.
type Operator struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
}

// OperatorStore resolves operator credentials by email. The in-repo
// implementation is a fixed, configuration-backed lookup; nothing about the
// decision path depends on it.
type OperatorStore interface {
	GetByEmail(ctx context.Context, email string) (*Operator, error)
}

// Service authenticates admin operators and issues JWTs for the
// policy-mutation and evidence-review surface of the API.
type Service struct {
	operators  OperatorStore
	jwtManager *JWTManager
}

func NewService(operators OperatorStore, jwtManager *JWTManager) *Service {
	return &Service{operators: operators, jwtManager: jwtManager}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token     string           `json:"token"`
	ExpiresIn int64            `json:"expires_in"`
	Operator  OperatorResponse `json:"operator"`
}

type OperatorResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// StaticOperatorStore resolves the single configured operator account. It
// exists so a real database-backed OperatorStore can be swapped in later
// without touching Service.
type StaticOperatorStore struct {
	operator Operator
}

func NewStaticOperatorStore(id uuid.UUID, email, passwordHash, role string) *StaticOperatorStore {
	return &StaticOperatorStore{operator: Operator{ID: id, Email: email, PasswordHash: passwordHash, Role: role}}
}

func (s *StaticOperatorStore) GetByEmail(_ context.Context, email string) (*Operator, error) {
	if email != s.operator.Email {
		return nil, errors.New("operator not found")
	}
	op := s.operator
	return &op, nil
}

// Login verifies operator credentials and issues a session token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	op, err := s.operators.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(req.Password, op.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(op.ID, op.Email, op.Role)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: int64(s.jwtManager.expiration.Seconds()),
		Operator:  OperatorResponse{ID: op.ID, Email: op.Email, Role: op.Role},
	}, nil
}
