package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/auth"
	"bidsia.com/bids-assistant/internal/store"
)

// AccountStore is the slice of the relational store the account service needs.
type AccountStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
	GetInstructions(ctx context.Context) (*store.Instructions, error)
	SaveInstructions(ctx context.Context, text string, temperature float64) error
}

// AccountService answers credential and configuration lookups. Store failures
// never escape as hard errors: callers get a safe fallback plus a diagnostic.
type AccountService struct {
	store  AccountStore
	logger *zap.Logger
}

func NewAccountService(s AccountStore, logger *zap.Logger) *AccountService {
	return &AccountService{store: s, logger: logger}
}

// Authenticate returns the stored role when username and password match. ok is
// false for unknown users, wrong passwords and store failures; diag is non-nil
// only for store failures.
func (s *AccountService) Authenticate(ctx context.Context, username, password string) (role string, ok bool, diag error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("authenticate: user lookup failed", zap.String("username", username), zap.Error(err))
		return "", false, fmt.Errorf("user lookup failed: %w", err)
	}
	if user == nil {
		return "", false, nil
	}

	match, err := auth.CheckPasswordHash(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("authenticate: stored password hash is unusable", zap.String("username", username), zap.Error(err))
		return "", false, nil
	}
	if !match {
		return "", false, nil
	}
	return user.Role, true, nil
}

// GetConfig returns the stored instructions, or the defaults ("", 0.7) when no
// row exists or the store fails; diag is non-nil only for store failures.
func (s *AccountService) GetConfig(ctx context.Context) (config store.Instructions, diag error) {
	defaults := store.Instructions{Text: store.DefaultInstructionsText, Temperature: store.DefaultTemperature}

	ins, err := s.store.GetInstructions(ctx)
	if err != nil {
		s.logger.Error("failed to load instructions, using defaults", zap.Error(err))
		return defaults, fmt.Errorf("instructions lookup failed: %w", err)
	}
	if ins == nil {
		return defaults, nil
	}
	return *ins, nil
}

// SaveConfig replaces the stored instructions. The returned error is a diagnostic.
func (s *AccountService) SaveConfig(ctx context.Context, config store.Instructions) error {
	if err := s.store.SaveInstructions(ctx, config.Text, config.Temperature); err != nil {
		s.logger.Error("failed to save instructions", zap.Error(err))
		return fmt.Errorf("instructions save failed: %w", err)
	}
	s.logger.Info("instructions saved", zap.Float64("temperature", config.Temperature), zap.Int("text_length", len(config.Text)))
	return nil
}
