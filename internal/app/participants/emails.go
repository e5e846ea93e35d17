package participants

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/events"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

func (s *Service) ListMyEmails(ctx context.Context, subject domain.SubjectID) ([]domain.VerifiedEmail, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEmails(ctx, p.ID)
}

// AddMyEmail links a new, unverified address to the caller's account and sends a
// confirmation token to it. Adding an address that is linked but still unverified
// replaces its pending token.
func (s *Service) AddMyEmail(ctx context.Context, subject domain.SubjectID, address string) ([]domain.VerifiedEmail, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	address = domain.NormalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return nil, validationError("invalid email", map[string]any{"address": err.Error()})
	}
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	e, linked := findEmail(emails, address)
	if linked && e.Verified {
		return nil, &Error{
			Status:  409,
			Code:    "EMAIL_ALREADY_LINKED",
			Message: "The address is already linked to your account.",
		}
	}
	if !linked {
		if err := s.repo.PutEmail(ctx, p.ID, domain.VerifiedEmail{Address: address}); err != nil {
			return nil, err
		}
	}
	if err := s.issueConfirmation(ctx, p.ID, address); err != nil {
		return nil, err
	}
	return s.repo.ListEmails(ctx, p.ID)
}

// VerifyMyEmail marks a linked address as verified when token matches the one sent to it.
// A token is accepted once.
func (s *Service) VerifyMyEmail(ctx context.Context, subject domain.SubjectID, address, token string) ([]domain.VerifiedEmail, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	e, ok := findEmail(emails, address)
	if !ok {
		return nil, emailNotFound()
	}
	if e.Verified {
		return emails, nil
	}

	c, err := s.repo.GetEmailConfirmation(ctx, p.ID, e.Address)
	if err != nil {
		if errors.Is(err, participantrepo.ErrConfirmationNotFound) {
			return nil, confirmationInvalid()
		}
		return nil, err
	}
	if token == "" || !s.clk.Now().Before(c.ExpiresAt) {
		return nil, confirmationInvalid()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.TokenHash), []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, confirmationInvalid()
		}
		return nil, fmt.Errorf("compare confirmation token: %w", err)
	}

	e.Verified = true
	if err := s.repo.PutEmail(ctx, p.ID, e); err != nil {
		return nil, err
	}
	if err := s.repo.DeleteEmailConfirmation(ctx, p.ID, e.Address); err != nil {
		return nil, err
	}
	s.logger.Info("participant email verified",
		zap.String("participant_id", string(p.ID)),
		zap.Bool("mit", e.InDomain(s.engine.Dues.MITDomain())),
	)
	return s.repo.ListEmails(ctx, p.ID)
}

// issueConfirmation stores the hash of a fresh token for address and hands the token to
// the confirmation sender. The token itself is never stored or logged.
func (s *Service) issueConfirmation(ctx context.Context, id domain.ParticipantID, address string) error {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate confirmation token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash confirmation token: %w", err)
	}

	expiresAt := s.clk.Now().UTC().Add(s.confirmationTTL)
	if err := s.repo.PutEmailConfirmation(ctx, id, participantrepo.EmailConfirmation{
		Address:   address,
		TokenHash: string(hash),
		ExpiresAt: expiresAt,
	}); err != nil {
		return err
	}

	if s.confirmations == nil {
		s.logger.Warn("no confirmation sender configured; token not delivered",
			zap.String("participant_id", string(id)),
		)
		return nil
	}
	if err := s.confirmations.SendEmailConfirmation(ctx, events.EmailConfirmationEvent{
		ParticipantID: id,
		Address:       address,
		Token:         token,
		ExpiresAt:     expiresAt,
	}); err != nil {
		return fmt.Errorf("send email confirmation: %w", err)
	}
	return nil
}

// RemoveMyEmail unlinks an address. The primary address cannot be removed.
func (s *Service) RemoveMyEmail(ctx context.Context, subject domain.SubjectID, address string) error {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return err
	}
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return err
	}
	e, ok := findEmail(emails, address)
	if !ok {
		return emailNotFound()
	}
	if e.Primary {
		return &Error{
			Status:  409,
			Code:    "PRIMARY_EMAIL_REQUIRED",
			Message: "The primary address cannot be removed; make another address primary first.",
		}
	}
	if err := s.repo.DeleteEmail(ctx, p.ID, e.Address); err != nil {
		if errors.Is(err, participantrepo.ErrEmailNotFound) {
			return emailNotFound()
		}
		return err
	}
	return nil
}

func emailNotFound() *Error {
	return &Error{
		Status:  404,
		Code:    "EMAIL_NOT_FOUND",
		Message: "The address is not linked to your account.",
	}
}

func confirmationInvalid() *Error {
	return &Error{
		Status:  422,
		Code:    "EMAIL_CONFIRMATION_INVALID",
		Message: "The confirmation token is invalid or has expired.",
	}
}
