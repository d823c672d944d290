// Package verification manages the two one-time-code flows: email
// verification for authenticated accounts and password reset for anyone who
// controls an email address.
package verification

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/account"
	"github.com/lumichess/account-service/internal/account/entity"
	accountrepo "github.com/lumichess/account-service/internal/account/repo"
	"github.com/lumichess/account-service/internal/mailer"
	"github.com/lumichess/account-service/internal/token"
	coderepo "github.com/lumichess/account-service/internal/verification/repo"
	"github.com/lumichess/account-service/pkg/utilities"
)

// CodeTTL is the validity window of every one-time code.
const CodeTTL = 15 * time.Minute

var (
	ErrAlreadyVerified = errors.New("email already verified")
	ErrDeliveryFailed  = errors.New("could not send the code")
	ErrMalformedCode   = errors.New("code must be 6 digits")
	// ErrInvalidCode covers wrong, expired and consumed codes alike; callers
	// are not told which.
	ErrInvalidCode = errors.New("invalid or expired code")
)

// Service issues and consumes one-time codes.
type Service struct {
	accounts *accountrepo.AccountRepo
	codes    *coderepo.CodeRepo
	hasher   account.PasswordHasher
	tokens   *token.Service
	mail     mailer.Sender
	logger   *zap.SugaredLogger
}

func NewService(db *sqlx.DB, tokens *token.Service, mail mailer.Sender, logger *zap.SugaredLogger) *Service {
	return &Service{
		accounts: accountrepo.NewAccountRepo(db),
		codes:    coderepo.NewCodeRepo(db),
		hasher:   account.BcryptHasher{Cost: 12},
		tokens:   tokens,
		mail:     mail,
		logger:   logger,
	}
}

// SendVerification issues a fresh verification code for the account,
// superseding any prior code. Unlike the welcome email, delivery failure is
// surfaced: the user needs to know no code arrived.
func (s *Service) SendVerification(ctx context.Context, userID int64) error {
	a, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.ErrNotFound
		}
		return err
	}
	if a.EmailVerified {
		return ErrAlreadyVerified
	}

	if err := s.codes.DeleteVerificationCodes(ctx, userID); err != nil {
		return err
	}
	code := utilities.NewDigitCode()
	if err := s.codes.CreateVerificationCode(ctx, userID, code, time.Now().Add(CodeTTL)); err != nil {
		return err
	}

	msg := mailer.VerificationCodeMessage(a.Firstname, code, int(CodeTTL.Minutes()))
	if err := s.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("verification email failed", "email", a.Email, "err", err)
		return ErrDeliveryFailed
	}
	return nil
}

// VerifyEmail consumes a code: on match the account flips to verified (a
// one-way transition), every verification code for the account is deleted,
// and a fresh token is minted since the emailVerified claim context changed.
func (s *Service) VerifyEmail(ctx context.Context, userID int64, code string) (*entity.Account, string, error) {
	if !isSixDigits(code) {
		return nil, "", ErrMalformedCode
	}

	ok, err := s.codes.HasActiveVerificationCode(ctx, userID, code)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrInvalidCode
	}

	if err := s.accounts.SetEmailVerified(ctx, userID); err != nil {
		return nil, "", err
	}
	if err := s.codes.DeleteVerificationCodes(ctx, userID); err != nil {
		return nil, "", err
	}

	a, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", account.ErrNotFound
		}
		return nil, "", err
	}
	tok, err := s.tokens.Mint(a)
	if err != nil {
		return nil, "", err
	}

	msg := mailer.VerifiedMessage(a.Firstname, a.ExternalID)
	if err := s.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("verified confirmation email failed", "email", a.Email, "err", err)
	}
	return a, tok, nil
}

// ForgotPassword issues a reset code when the email matches an account. It
// never reveals whether the email exists: the caller gets the same generic
// outcome either way, including when delivery fails.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	if err := s.codes.DeleteResetCodes(ctx, email); err != nil {
		return err
	}
	code := utilities.NewDigitCode()
	if err := s.codes.CreateResetCode(ctx, email, code, time.Now().Add(CodeTTL)); err != nil {
		return err
	}

	msg := mailer.ResetCodeMessage(a.Firstname, code, int(CodeTTL.Minutes()))
	if err := s.mail.Send(ctx, email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("reset email failed", "email", email, "err", err)
	}
	return nil
}

// VerifyResetCode is a read-only check; it does not consume the code, so a
// client can confirm correctness before asking the user for a new password.
func (s *Service) VerifyResetCode(ctx context.Context, email, code string) error {
	if email == "" || !isSixDigits(code) {
		return ErrMalformedCode
	}
	ok, err := s.codes.HasActiveResetCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// ResetPassword validates the code once more, stores the new hash and marks
// the code consumed. The row is kept for audit; the flag makes any further
// validation fail.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := account.ValidatePassword(newPassword); err != nil {
		return err
	}

	ok, err := s.codes.HasActiveResetCode(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordByEmail(ctx, email, hash); err != nil {
		return err
	}
	return s.codes.ConsumeResetCode(ctx, email, code)
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
