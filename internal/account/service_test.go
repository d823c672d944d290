package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	accountrepo "github.com/lumichess/account-service/internal/account/repo"
	"github.com/lumichess/account-service/internal/federation"
	"github.com/lumichess/account-service/internal/token"
	coderepo "github.com/lumichess/account-service/internal/verification/repo"
)

type mailStub struct {
	sent []string
	err  error
}

func (m *mailStub) Send(_ context.Context, to, _, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type verifierStub struct {
	identity *federation.Identity
	err      error
}

func (v *verifierStub) Resolve(context.Context, string) (*federation.Identity, error) {
	return v.identity, v.err
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *mailStub, *verifierStub) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	mail := &mailStub{}
	verifier := &verifierStub{}
	svc := &Service{
		repo:     accountrepo.NewAccountRepo(sqlxDB),
		codes:    coderepo.NewCodeRepo(sqlxDB),
		hasher:   BcryptHasher{Cost: bcrypt.MinCost},
		tokens:   token.NewService(token.Config{Secret: "test-secret", TTL: time.Hour}),
		verifier: verifier,
		mail:     mail,
		logger:   zap.NewNop().Sugar(),
	}
	return svc, mock, mail, verifier
}

func accountRow(id int64, email, username, hash string, verified bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "email", "username", "password_hash", "google_id",
		"firstname", "lastname", "birth_date", "email_verified", "created_at", "updated_at",
	}).AddRow(id, "12345678", email, username, hash, nil,
		"Marie", "Curie", nil, verified, time.Now(), time.Now())
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := BcryptHasher{Cost: bcrypt.MinCost}.Hash(pw)
	require.NoError(t, err)
	return h
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	valid := RegisterInput{
		Email: "a@b.com", Password: "Valid!Pass", Firstname: "Marie",
		Lastname: "Curie", Username: "mcurie",
	}

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		want   error
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "nope" }, ErrInvalidEmail},
		{"bad firstname", func(in *RegisterInput) { in.Firstname = "X9" }, ErrInvalidName},
		{"bad lastname", func(in *RegisterInput) { in.Lastname = "!!" }, ErrInvalidName},
		{"weak password", func(in *RegisterInput) { in.Password = "weak" }, ErrWeakPassword},
		{"bad birth date", func(in *RegisterInput) { in.BirthDate = "31-12-2000" }, ErrInvalidBirthDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, _, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterEmailTaken(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE email=").
		WithArgs("a@b.com", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, _, err := svc.Register(context.Background(), RegisterInput{
		Email: "a@b.com", Password: "Valid!Pass", Firstname: "Marie",
		Lastname: "Curie", Username: "mcurie",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSuccess(t *testing.T) {
	svc, mock, mail, _ := newTestService(t)

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE email=").
		WithArgs("a@b.com", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE username=").
		WithArgs("mcurie", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE user_id=").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	a, tok, err := svc.Register(context.Background(), RegisterInput{
		Email: "a@b.com", Password: "Valid!Pass", Firstname: "Marie",
		Lastname: "Curie", Username: "mcurie", BirthDate: "1990-05-20",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Len(t, a.ExternalID, 8)
	assert.False(t, a.EmailVerified)
	assert.NotEmpty(t, tok)
	assert.Equal(t, []string{"a@b.com"}, mail.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterSucceedsWhenWelcomeEmailFails(t *testing.T) {
	svc, mock, mail, _ := newTestService(t)
	mail.err = errors.New("smtp down")

	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE email=").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE username=").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE user_id=").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

	_, tok, err := svc.Register(context.Background(), RegisterInput{
		Email: "a@b.com", Password: "Valid!Pass", Firstname: "Marie",
		Lastname: "Curie", Username: "mcurie",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginUnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("nobody@b.com").
		WillReturnError(sql.ErrNoRows)

	_, _, errUnknown := svc.Login(context.Background(), "nobody@b.com", "Valid!Pass")
	assert.ErrorIs(t, errUnknown, ErrBadCredentials)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("a@b.com").
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Other!Pass"), true))

	_, _, errWrong := svc.Login(context.Background(), "a@b.com", "Valid!Pass")
	assert.ErrorIs(t, errWrong, ErrBadCredentials)

	assert.Equal(t, errUnknown, errWrong)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSuccess(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email=").
		WithArgs("a@b.com").
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))

	a, tok, err := svc.Login(context.Background(), "a@b.com", "Valid!Pass")
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.NotEmpty(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFederatedAuthUnknownIdentity(t *testing.T) {
	svc, mock, _, verifier := newTestService(t)
	verifier.identity = &federation.Identity{
		ProviderID: "g-123", Email: "new@b.com", Firstname: "Paul", Lastname: "Morphy",
	}

	mock.ExpectQuery("SELECT (.+) FROM users WHERE google_id=").
		WithArgs("g-123", "new@b.com").
		WillReturnError(sql.ErrNoRows)

	res, err := svc.FederatedAuth(context.Background(), "credential")
	require.NoError(t, err)
	assert.False(t, res.Existing)
	require.NotNil(t, res.Identity)
	assert.Equal(t, "g-123", res.Identity.ProviderID)
	assert.Nil(t, res.Account)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFederatedAuthLinksUnlinkedAccount(t *testing.T) {
	svc, mock, _, verifier := newTestService(t)
	verifier.identity = &federation.Identity{ProviderID: "g-123", Email: "a@b.com"}

	// existing row without google_id
	mock.ExpectQuery("SELECT (.+) FROM users WHERE google_id=").
		WithArgs("g-123", "a@b.com").
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), false))
	mock.ExpectExec("UPDATE users SET google_id=").
		WithArgs(int64(7), "g-123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := svc.FederatedAuth(context.Background(), "credential")
	require.NoError(t, err)
	assert.True(t, res.Existing)
	require.NotNil(t, res.Account.GoogleID)
	assert.Equal(t, "g-123", *res.Account.GoogleID)
	assert.True(t, res.Account.EmailVerified)
	assert.NotEmpty(t, res.Token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFederatedAuthBadCredential(t *testing.T) {
	svc, _, _, verifier := newTestService(t)
	verifier.err = federation.ErrInvalidCredential

	_, err := svc.FederatedAuth(context.Background(), "junk")
	assert.ErrorIs(t, err, federation.ErrInvalidCredential)
}

func TestFederatedRegisterValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	valid := FederatedRegisterInput{
		GoogleID: "g-123", Email: "a@b.com", Firstname: "Marie", Lastname: "Curie",
		Username: "mcurie", Password: "Valid!Pass", BirthDate: "1990-05-20",
	}

	cases := []struct {
		name   string
		mutate func(*FederatedRegisterInput)
		want   error
	}{
		{"missing google id", func(in *FederatedRegisterInput) { in.GoogleID = "" }, ErrMissingFederatedData},
		{"missing email", func(in *FederatedRegisterInput) { in.Email = "" }, ErrMissingFederatedData},
		{"short username", func(in *FederatedRegisterInput) { in.Username = "ab" }, ErrUsernameTooShort},
		{"weak password", func(in *FederatedRegisterInput) { in.Password = "nope" }, ErrWeakPassword},
		{"missing birth date", func(in *FederatedRegisterInput) { in.BirthDate = "" }, ErrBirthDateRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, _, err := svc.FederatedRegister(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateRejectsWrongCurrentPassword(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))

	_, _, err := svc.Update(context.Background(), 7, UpdateInput{
		CurrentPassword: "Wrong!Pass",
		Firstname:       "Irene",
	})
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNothingSupplied(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))

	_, _, err := svc.Update(context.Background(), 7, UpdateInput{CurrentPassword: "Valid!Pass"})
	assert.ErrorIs(t, err, ErrNothingToUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmailResetsVerification(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "old@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM users WHERE email=").
		WithArgs("new@b.com", int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("UPDATE users SET email=\\$1, email_verified=false").
		WithArgs("new@b.com", int64(7)).
		WillReturnRows(accountRow(7, "new@b.com", "mcurie", mustHash(t, "Valid!Pass"), false))

	a, tok, err := svc.Update(context.Background(), 7, UpdateInput{
		CurrentPassword: "Valid!Pass",
		Email:           "new@b.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", a.Email)
	assert.False(t, a.EmailVerified)
	assert.NotEmpty(t, tok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSameEmailIsNoChange(t *testing.T) {
	svc, mock, _, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))

	// same address, different case: no update to apply
	_, _, err := svc.Update(context.Background(), 7, UpdateInput{
		CurrentPassword: "Valid!Pass",
		Email:           "A@B.COM",
	})
	assert.ErrorIs(t, err, ErrNothingToUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	svc, mock, mail, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))
	mock.ExpectExec("DELETE FROM password_reset_codes WHERE email=").
		WithArgs("a@b.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.Delete(context.Background(), 7, "Valid!Pass")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@b.com"}, mail.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWrongPassword(t *testing.T) {
	svc, mock, mail, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(int64(7)).
		WillReturnRows(accountRow(7, "a@b.com", "mcurie", mustHash(t, "Valid!Pass"), true))

	err := svc.Delete(context.Background(), 7, "Wrong!Pass")
	assert.ErrorIs(t, err, ErrBadCredentials)
	assert.Empty(t, mail.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
