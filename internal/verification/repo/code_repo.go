package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// CodeRepo provides data access for the two one-time-code tables.
// Verification codes are keyed by account id and deleted on success; reset
// codes are keyed by email (the requester may not be authenticated) and
// flagged consumed instead, keeping an audit trail.
type CodeRepo struct {
	db *sqlx.DB
}

func NewCodeRepo(db *sqlx.DB) *CodeRepo { return &CodeRepo{db: db} }

// DeleteVerificationCodes drops every verification code for the account.
// Called before issuing a new code (supersede) and after a successful verify.
func (r *CodeRepo) DeleteVerificationCodes(ctx context.Context, userID int64) error {
	const q = `DELETE FROM email_verification_codes WHERE user_id=$1`
	_, err := r.db.ExecContext(ctx, q, userID)
	return err
}

func (r *CodeRepo) CreateVerificationCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error {
	const q = `INSERT INTO email_verification_codes (user_id, code, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, q, userID, code, expiresAt)
	return err
}

// HasActiveVerificationCode reports whether an unexpired code matches the
// account. Expiry is enforced here at read time, not by eviction.
func (r *CodeRepo) HasActiveVerificationCode(ctx context.Context, userID int64, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM email_verification_codes WHERE user_id=$1 AND code=$2 AND expires_at > NOW())`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, userID, code); err != nil {
		return false, err
	}
	return ok, nil
}

// DeleteResetCodes drops every reset code issued to the email, consumed or
// not. A new issue supersedes all prior codes.
func (r *CodeRepo) DeleteResetCodes(ctx context.Context, email string) error {
	const q = `DELETE FROM password_reset_codes WHERE email=$1`
	_, err := r.db.ExecContext(ctx, q, email)
	return err
}

func (r *CodeRepo) CreateResetCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	const q = `INSERT INTO password_reset_codes (email, code, expires_at, used) VALUES ($1, $2, $3, false)`
	_, err := r.db.ExecContext(ctx, q, email, code, expiresAt)
	return err
}

// HasActiveResetCode reports whether an unexpired, unconsumed code matches
// the email. Read-only: consumption happens only at actual password reset.
func (r *CodeRepo) HasActiveResetCode(ctx context.Context, email, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM password_reset_codes WHERE email=$1 AND code=$2 AND expires_at > NOW() AND used=false)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, email, code); err != nil {
		return false, err
	}
	return ok, nil
}

// ConsumeResetCode flips the used flag; the row stays behind as audit trail
// and future validations fail on the flag.
func (r *CodeRepo) ConsumeResetCode(ctx context.Context, email, code string) error {
	const q = `UPDATE password_reset_codes SET used=true WHERE email=$1 AND code=$2`
	_, err := r.db.ExecContext(ctx, q, email, code)
	return err
}

// PurgeExpired removes expired rows from both code tables and returns the
// total removed. Validation never sees expired rows anyway; this keeps the
// tables from accumulating dead entries.
func (r *CodeRepo) PurgeExpired(ctx context.Context) (int64, error) {
	var total int64
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_codes WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	res, err = r.db.ExecContext(ctx, `DELETE FROM password_reset_codes WHERE expires_at <= NOW()`)
	if err != nil {
		return total, err
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}
	return total, nil
}
