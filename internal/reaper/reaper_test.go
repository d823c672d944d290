package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	accountrepo "github.com/lumichess/account-service/internal/account/repo"
	coderepo "github.com/lumichess/account-service/internal/verification/repo"
)

type mailStub struct {
	sent []string
}

func (m *mailStub) Send(_ context.Context, to, _, _ string) error {
	m.sent = append(m.sent, to)
	return nil
}

func newTestReaper(t *testing.T) (*Reaper, sqlmock.Sqlmock, *mailStub) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "postgres")
	mail := &mailStub{}
	r := &Reaper{
		accounts:     accountrepo.NewAccountRepo(sqlxDB),
		codes:        coderepo.NewCodeRepo(sqlxDB),
		mail:         mail,
		logger:       zap.NewNop().Sugar(),
		Interval:     time.Hour,
		InitialDelay: time.Millisecond,
		GracePeriod:  6 * 24 * time.Hour,
	}
	return r, mock, mail
}

func TestSweepRemovesStaleAndSparesVerified(t *testing.T) {
	r, mock, mail := newTestReaper(t)

	mock.ExpectQuery("SELECT id, email, firstname FROM users WHERE email_verified=false").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "firstname"}).
			AddRow(int64(1), "stale@b.com", "Anna").
			AddRow(int64(2), "saved@b.com", "Boris"))

	// first account is still stale, second verified between select and delete
	mock.ExpectExec("DELETE FROM users WHERE id=\\$1 AND email_verified=false").
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM users WHERE id=\\$1 AND email_verified=false").
		WithArgs(int64(2), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectExec("DELETE FROM email_verification_codes WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM password_reset_codes WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 2))

	r.Sweep(context.Background())

	// notices go out before the conditional delete, so both get one
	assert.Equal(t, []string{"stale@b.com", "saved@b.com"}, mail.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepEmpty(t *testing.T) {
	r, mock, mail := newTestReaper(t)

	mock.ExpectQuery("SELECT id, email, firstname FROM users WHERE email_verified=false").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "firstname"}))
	mock.ExpectExec("DELETE FROM email_verification_codes WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM password_reset_codes WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	r.Sweep(context.Background())

	assert.Empty(t, mail.sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r, _, _ := newTestReaper(t)
	r.InitialDelay = time.Hour // never reaches the first sweep

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancel")
	}
}
