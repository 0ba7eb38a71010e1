package models

import "time"

// Identity is a registered user of the record-keeping application. Each
// identity carries exactly one password credential and one ECC public
// key; the key encoding is whatever the client registered (JWK, PEM or
// bare base64 SPKI) and is only interpreted at verification time.
type Identity struct {
	IdentityBucket   int        `db:"identity_bucket"`
	IdentityID       string     `db:"identity_id"`
	Username         string     `db:"username"`
	Email            string     `db:"email"`
	PasswordHash     string     `db:"password_hash"`
	PublicKey        string     `db:"public_key"`
	Role             string     `db:"role"`
	ResetTokenHash   string     `db:"reset_token_hash"`
	ResetTokenExpiry *time.Time `db:"reset_token_expiry"`
	CreatedAt        time.Time  `db:"created_at"`
	LastLogin        *time.Time `db:"last_login"`
}

// Profile is the public subset of an identity returned by login flows.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (i *Identity) Profile() Profile {
	return Profile{
		ID:       i.IdentityID,
		Email:    i.Email,
		Username: i.Username,
		Role:     i.Role,
	}
}
