package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lumichess/account-service/internal/account/entity"
)

// AccountRepo provides data access for the users table using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// Duplicate-key sentinels. The pre-checks in the service are a fast path;
// these are the authoritative backstop when two writers race past the check.
var (
	ErrDuplicateEmail      = errors.New("email already in use")
	ErrDuplicateUsername   = errors.New("username already in use")
	ErrDuplicateExternalID = errors.New("external id already in use")
	ErrDuplicateGoogleID   = errors.New("google id already linked")
)

const pgUniqueViolation = "23505"

// translateUnique maps a pq unique-violation to the matching sentinel so the
// service reports the same conflict error as its pre-check would have.
func translateUnique(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return ErrDuplicateEmail
	case "users_username_key":
		return ErrDuplicateUsername
	case "users_user_id_key":
		return ErrDuplicateExternalID
	case "users_google_id_key":
		return ErrDuplicateGoogleID
	}
	return err
}

const accountColumns = `id, user_id, email, username, password_hash, google_id,
	firstname, lastname, birth_date, email_verified, created_at, updated_at`

// Create inserts a new account row and returns the assigned internal id.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) (int64, error) {
	q := `INSERT INTO users (user_id, email, username, password_hash, google_id, firstname, lastname, birth_date, email_verified)
	      VALUES (:user_id, :email, :username, :password_hash, :google_id, :firstname, :lastname, :birth_date, :email_verified)
	      RETURNING id, created_at`
	params := map[string]any{
		"user_id":        a.ExternalID,
		"email":          a.Email,
		"username":       a.Username,
		"password_hash":  a.PasswordHash,
		"google_id":      a.GoogleID,
		"firstname":      a.Firstname,
		"lastname":       a.Lastname,
		"birth_date":     a.BirthDate,
		"email_verified": a.EmailVerified,
	}
	stmt, err := r.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return 0, translateUnique(err)
	}
	defer stmt.Close()
	if stmt.Next() {
		if err := stmt.Scan(&a.ID, &a.CreatedAt); err != nil {
			return 0, err
		}
		return a.ID, nil
	}
	if err := stmt.Err(); err != nil {
		return 0, translateUnique(err)
	}
	return 0, errors.New("no id returned")
}

// GetByID fetches a full account row or sql.ErrNoRows.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*entity.Account, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE id=$1`, accountColumns)
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByEmail matches case-insensitively thanks to the citext column.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE email=$1`, accountColumns)
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, email); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByGoogleIDOrEmail resolves a federated login to an existing account
// either by the provider id or by the verified provider email.
func (r *AccountRepo) GetByGoogleIDOrEmail(ctx context.Context, googleID, email string) (*entity.Account, error) {
	q := fmt.Sprintf(`SELECT %s FROM users WHERE google_id=$1 OR email=$2`, accountColumns)
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, googleID, email); err != nil {
		return nil, err
	}
	return &a, nil
}

// EmailTaken reports whether any account other than excludeID holds email.
// Pass excludeID=0 to check against all accounts.
func (r *AccountRepo) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1 AND id<>$2)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, q, email, excludeID); err != nil {
		return false, err
	}
	return taken, nil
}

// UsernameTaken reports whether any account other than excludeID holds username.
func (r *AccountRepo) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1 AND id<>$2)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, q, username, excludeID); err != nil {
		return false, err
	}
	return taken, nil
}

// ExternalIDExists reports whether an 8-digit external id is already assigned.
func (r *AccountRepo) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, externalID); err != nil {
		return false, err
	}
	return exists, nil
}

// LinkGoogleID attaches a provider id to an existing account. Federated
// identity implies a verified email address.
func (r *AccountRepo) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	const q = `UPDATE users SET google_id=$2, email_verified=true, updated_at=NOW() WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, q, id, googleID); err != nil {
		return translateUnique(err)
	}
	return nil
}

// UpdateSet carries the fields an Update applies. Nil pointers are left
// untouched; ResetEmailVerified accompanies an email change.
type UpdateSet struct {
	Email              *string
	ResetEmailVerified bool
	Firstname          *string
	Lastname           *string
	Username           *string
	PasswordHash       *string
	BirthDate          *time.Time
}

// Empty reports whether the set would change nothing.
func (u UpdateSet) Empty() bool {
	return u.Email == nil && u.Firstname == nil && u.Lastname == nil &&
		u.Username == nil && u.PasswordHash == nil && u.BirthDate == nil
}

// Update applies all supplied fields in a single UPDATE statement and
// returns the resulting row.
func (r *AccountRepo) Update(ctx context.Context, id int64, set UpdateSet) (*entity.Account, error) {
	clauses := make([]string, 0, 8)
	args := make([]any, 0, 8)
	n := 1
	add := func(col string, v any) {
		clauses = append(clauses, fmt.Sprintf("%s=$%d", col, n))
		args = append(args, v)
		n++
	}
	if set.Email != nil {
		add("email", *set.Email)
		if set.ResetEmailVerified {
			clauses = append(clauses, "email_verified=false")
		}
	}
	if set.Firstname != nil {
		add("firstname", *set.Firstname)
	}
	if set.Lastname != nil {
		add("lastname", *set.Lastname)
	}
	if set.Username != nil {
		add("username", *set.Username)
	}
	if set.PasswordHash != nil {
		add("password_hash", *set.PasswordHash)
	}
	if set.BirthDate != nil {
		add("birth_date", *set.BirthDate)
	}
	clauses = append(clauses, "updated_at=NOW()")
	args = append(args, id)

	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d RETURNING %s`,
		strings.Join(clauses, ", "), n, accountColumns)
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, args...); err != nil {
		return nil, translateUnique(err)
	}
	return &a, nil
}

// SetEmailVerified flips the verification flag; the transition is one-way.
func (r *AccountRepo) SetEmailVerified(ctx context.Context, id int64) error {
	const q = `UPDATE users SET email_verified=true, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UpdatePasswordByEmail stores a new hash for the account owning email.
// Used by the reset flow, where the caller is not authenticated.
func (r *AccountRepo) UpdatePasswordByEmail(ctx context.Context, email, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE email=$1`
	_, err := r.db.ExecContext(ctx, q, email, hash)
	return err
}

// Delete removes the account row; verification codes cascade via FK.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// ListStaleUnverified returns accounts still unverified past the cutoff.
func (r *AccountRepo) ListStaleUnverified(ctx context.Context, cutoff time.Time) ([]entity.Account, error) {
	const q = `SELECT id, email, firstname FROM users WHERE email_verified=false AND created_at < $1`
	var accounts []entity.Account
	if err := r.db.SelectContext(ctx, &accounts, q, cutoff); err != nil {
		return nil, err
	}
	return accounts, nil
}

// DeleteIfStillStale deletes the account only if it is still unverified and
// still older than the cutoff, so an account verified between selection and
// deletion survives the sweep.
func (r *AccountRepo) DeleteIfStillStale(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	const q = `DELETE FROM users WHERE id=$1 AND email_verified=false AND created_at < $2`
	res, err := r.db.ExecContext(ctx, q, id, cutoff)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
