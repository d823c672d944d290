package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/lumichess/account-service/internal/account/entity"
	accountrepo "github.com/lumichess/account-service/internal/account/repo"
	"github.com/lumichess/account-service/internal/federation"
	"github.com/lumichess/account-service/internal/mailer"
	"github.com/lumichess/account-service/internal/token"
	coderepo "github.com/lumichess/account-service/internal/verification/repo"
	"github.com/lumichess/account-service/pkg/utilities"
)

// VerificationGraceDays is how long an unverified account stays alive before
// the reaper removes it.
const VerificationGraceDays = 6

var (
	ErrInvalidEmail         = errors.New("invalid email format")
	ErrInvalidName          = errors.New("first and last name must contain letters only")
	ErrWeakPassword         = errors.New("password does not meet the policy")
	ErrEmailTaken           = errors.New("email already in use")
	ErrUsernameTaken        = errors.New("username already in use")
	ErrBadCredentials       = errors.New("invalid credentials")
	ErrNotFound             = errors.New("account not found")
	ErrNothingToUpdate      = errors.New("nothing to update")
	ErrMissingFederatedData = errors.New("missing federated identity data")
	ErrUsernameTooShort     = errors.New("username must be at least 3 characters")
	ErrBirthDateRequired    = errors.New("birth date required")
	ErrInvalidBirthDate     = errors.New("invalid birth date")
)

// Service orchestrates the account lifecycle: registration, login, federated
// auth, profile update and deletion.
type Service struct {
	repo     *accountrepo.AccountRepo
	codes    *coderepo.CodeRepo
	hasher   PasswordHasher
	tokens   *token.Service
	verifier federation.Verifier
	mail     mailer.Sender
	logger   *zap.SugaredLogger
}

func NewService(db *sqlx.DB, tokens *token.Service, verifier federation.Verifier, mail mailer.Sender, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:     accountrepo.NewAccountRepo(db),
		codes:    coderepo.NewCodeRepo(db),
		hasher:   BcryptHasher{Cost: 12},
		tokens:   tokens,
		verifier: verifier,
		mail:     mail,
		logger:   logger,
	}
}

// RegisterInput carries the registration form fields. BirthDate is an
// optional YYYY-MM-DD string.
type RegisterInput struct {
	Email     string
	Password  string
	Firstname string
	Lastname  string
	Username  string
	BirthDate string
}

// Register creates an unverified account, mints a token and sends a welcome
// email. The welcome email is best-effort: registration succeeds even when
// delivery fails.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Account, string, error) {
	if err := validateEmail(in.Email); err != nil {
		return nil, "", err
	}
	if err := validateName(in.Firstname); err != nil {
		return nil, "", err
	}
	if err := validateName(in.Lastname); err != nil {
		return nil, "", err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, "", err
	}
	birthDate, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, "", err
	}

	if taken, err := s.repo.EmailTaken(ctx, in.Email, 0); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrEmailTaken
	}
	if taken, err := s.repo.UsernameTaken(ctx, in.Username, 0); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	externalID, err := s.allocateExternalID(ctx)
	if err != nil {
		return nil, "", err
	}

	a := &entity.Account{
		ExternalID:    externalID,
		Email:         in.Email,
		Username:      in.Username,
		PasswordHash:  hash,
		Firstname:     in.Firstname,
		Lastname:      in.Lastname,
		BirthDate:     birthDate,
		EmailVerified: false,
	}
	if _, err := s.repo.Create(ctx, a); err != nil {
		return nil, "", translateConflict(err)
	}

	tok, err := s.tokens.Mint(a)
	if err != nil {
		return nil, "", err
	}

	msg := mailer.WelcomeMessage(a.Firstname, VerificationGraceDays)
	if err := s.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("welcome email failed", "email", a.Email, "err", err)
	}
	return a, tok, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password produce the same error so callers cannot enumerate accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*entity.Account, string, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrBadCredentials
		}
		return nil, "", err
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		return nil, "", ErrBadCredentials
	}
	tok, err := s.tokens.Mint(a)
	if err != nil {
		return nil, "", err
	}
	return a, tok, nil
}

// FederatedResult is either an existing-account login (Account+Token) or a
// registration-continuation payload (Identity) when no account matches.
type FederatedResult struct {
	Existing bool
	Account  *entity.Account
	Token    string
	Identity *federation.Identity
}

// FederatedAuth resolves an external credential. A match on provider id or
// email is treated as a login; linking happens lazily and implies a verified
// email. No account is ever created here.
func (s *Service) FederatedAuth(ctx context.Context, credential string) (*FederatedResult, error) {
	id, err := s.verifier.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}

	a, err := s.repo.GetByGoogleIDOrEmail(ctx, id.ProviderID, id.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &FederatedResult{Identity: id}, nil
		}
		return nil, err
	}

	if a.GoogleID == nil {
		if err := s.repo.LinkGoogleID(ctx, a.ID, id.ProviderID); err != nil {
			return nil, translateConflict(err)
		}
		pid := id.ProviderID
		a.GoogleID = &pid
		a.EmailVerified = true
	}
	tok, err := s.tokens.Mint(a)
	if err != nil {
		return nil, err
	}
	return &FederatedResult{Existing: true, Account: a, Token: tok}, nil
}

// FederatedRegisterInput completes a registration started by FederatedAuth.
type FederatedRegisterInput struct {
	GoogleID  string
	Email     string
	Firstname string
	Lastname  string
	Username  string
	Password  string
	BirthDate string
}

// FederatedRegister creates an account with the provider id attached and the
// email verified from creation. A password is still set, so the account can
// also log in with credentials.
func (s *Service) FederatedRegister(ctx context.Context, in FederatedRegisterInput) (*entity.Account, string, error) {
	if in.GoogleID == "" || in.Email == "" {
		return nil, "", ErrMissingFederatedData
	}
	if err := validateName(in.Firstname); err != nil {
		return nil, "", err
	}
	if err := validateName(in.Lastname); err != nil {
		return nil, "", err
	}
	if len(in.Username) < 3 {
		return nil, "", ErrUsernameTooShort
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, "", err
	}
	if in.BirthDate == "" {
		return nil, "", ErrBirthDateRequired
	}
	birthDate, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return nil, "", err
	}

	if taken, err := s.repo.EmailTaken(ctx, in.Email, 0); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrEmailTaken
	}
	if taken, err := s.repo.UsernameTaken(ctx, in.Username, 0); err != nil {
		return nil, "", err
	} else if taken {
		return nil, "", ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", err
	}
	externalID, err := s.allocateExternalID(ctx)
	if err != nil {
		return nil, "", err
	}

	gid := in.GoogleID
	a := &entity.Account{
		ExternalID:    externalID,
		Email:         in.Email,
		Username:      in.Username,
		PasswordHash:  hash,
		GoogleID:      &gid,
		Firstname:     in.Firstname,
		Lastname:      in.Lastname,
		BirthDate:     birthDate,
		EmailVerified: true,
	}
	if _, err := s.repo.Create(ctx, a); err != nil {
		return nil, "", translateConflict(err)
	}

	tok, err := s.tokens.Mint(a)
	if err != nil {
		return nil, "", err
	}

	msg := mailer.FederatedWelcomeMessage(a.Firstname, a.ExternalID)
	if err := s.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("welcome email failed", "email", a.Email, "err", err)
	}
	return a, tok, nil
}

// GetSelf returns the current profile; fails when the token references an
// account that no longer exists.
func (s *Service) GetSelf(ctx context.Context, id int64) (*entity.Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// UpdateInput carries a partial profile update. Empty strings mean "not
// supplied". CurrentPassword is always required.
type UpdateInput struct {
	CurrentPassword string
	Email           string
	Firstname       string
	Lastname        string
	Username        string
	NewPassword     string
	BirthDate       string
}

// Update re-authenticates with the current password before applying any
// change, applies all supplied fields in one write, and re-mints the token
// since identity claims may have changed. Changing the email resets the
// verification state.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*entity.Account, string, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	if !s.hasher.Verify(current.PasswordHash, in.CurrentPassword) {
		return nil, "", ErrBadCredentials
	}

	var set accountrepo.UpdateSet
	if in.Email != "" && !strings.EqualFold(in.Email, current.Email) {
		if err := validateEmail(in.Email); err != nil {
			return nil, "", err
		}
		if taken, err := s.repo.EmailTaken(ctx, in.Email, id); err != nil {
			return nil, "", err
		} else if taken {
			return nil, "", ErrEmailTaken
		}
		email := in.Email
		set.Email = &email
		set.ResetEmailVerified = true
	}
	if in.Firstname != "" {
		v := in.Firstname
		set.Firstname = &v
	}
	if in.Lastname != "" {
		v := in.Lastname
		set.Lastname = &v
	}
	if in.Username != "" {
		if taken, err := s.repo.UsernameTaken(ctx, in.Username, id); err != nil {
			return nil, "", err
		} else if taken {
			return nil, "", ErrUsernameTaken
		}
		v := in.Username
		set.Username = &v
	}
	if in.NewPassword != "" {
		hash, err := s.hasher.Hash(in.NewPassword)
		if err != nil {
			return nil, "", err
		}
		set.PasswordHash = &hash
	}
	if in.BirthDate != "" {
		bd, err := parseBirthDate(in.BirthDate)
		if err != nil {
			return nil, "", err
		}
		set.BirthDate = bd
	}

	if set.Empty() {
		return nil, "", ErrNothingToUpdate
	}

	updated, err := s.repo.Update(ctx, id, set)
	if err != nil {
		return nil, "", translateConflict(err)
	}
	tok, err := s.tokens.Mint(updated)
	if err != nil {
		return nil, "", err
	}
	return updated, tok, nil
}

// Delete re-verifies the password, removes the account and its one-time
// codes, and sends a confirmation email best-effort. Irreversible.
func (s *Service) Delete(ctx context.Context, id int64, password string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		return ErrBadCredentials
	}

	// reset codes are keyed by email, outside the FK cascade
	if err := s.codes.DeleteResetCodes(ctx, a.Email); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, a.ID); err != nil {
		return err
	}

	msg := mailer.DeletedMessage(a.Firstname)
	if err := s.mail.Send(ctx, a.Email, msg.Subject, msg.Body); err != nil {
		s.logger.Warnw("deletion email failed", "email", a.Email, "err", err)
	}
	return nil
}

// allocateExternalID draws 8-digit candidates until one is free. The
// contract is retry until unique, not retry N times then fail.
func (s *Service) allocateExternalID(ctx context.Context) (string, error) {
	for {
		candidate := utilities.NewExternalID()
		exists, err := s.repo.ExternalIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// translateConflict maps store-level duplicate errors onto the same
// sentinels the pre-checks produce.
func translateConflict(err error) error {
	switch {
	case errors.Is(err, accountrepo.ErrDuplicateEmail):
		return ErrEmailTaken
	case errors.Is(err, accountrepo.ErrDuplicateUsername):
		return ErrUsernameTaken
	default:
		return err
	}
}

func parseBirthDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, ErrInvalidBirthDate
	}
	return &t, nil
}
