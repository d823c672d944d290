package entity

import "time"

// Account represents a row in the `users` table. The internal id is the
// storage key; ExternalID is the 8-digit identifier shown to end users.
type Account struct {
	ID            int64      `db:"id"`
	ExternalID    string     `db:"user_id"`
	Email         string     `db:"email"`
	Username      string     `db:"username"`
	PasswordHash  string     `db:"password_hash"`
	GoogleID      *string    `db:"google_id"`
	Firstname     string     `db:"firstname"`
	Lastname      string     `db:"lastname"`
	BirthDate     *time.Time `db:"birth_date"`
	EmailVerified bool       `db:"email_verified"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Profile is the projection returned to callers. It never carries the
// password hash or the linked provider id.
type Profile struct {
	ID            int64     `json:"id"`
	ExternalID    string    `json:"identifiant"`
	Email         string    `json:"email"`
	Firstname     string    `json:"firstname"`
	Lastname      string    `json:"lastname"`
	Username      string    `json:"username"`
	BirthDate     *string   `json:"birthDate"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// PublicProfile maps an Account to its caller-facing projection.
func (a *Account) PublicProfile() Profile {
	var bd *string
	if a.BirthDate != nil {
		s := a.BirthDate.Format("2006-01-02")
		bd = &s
	}
	return Profile{
		ID:            a.ID,
		ExternalID:    a.ExternalID,
		Email:         a.Email,
		Firstname:     a.Firstname,
		Lastname:      a.Lastname,
		Username:      a.Username,
		BirthDate:     bd,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}
