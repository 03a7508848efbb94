package model

import "time"

// User represents an application user record as stored in the `users`
// table. PasswordHash is only populated by lookups used for credential
// checks; it is never serialized.
//
// Fields:
//  ID                : primary key identifier of the user.
//  Username          : unique username, always lowercase.
//  PasswordHash      : bcrypt hashed password.
//  Role              : one of the closed Role values.
//  MustChangePassword: set on creation and on administrative password resets.
//  CreatedAt         : timestamp of creation.
//  UpdatedAt         : timestamp of last update.
type User struct {
    ID                 uint64    `json:"id"`
    Username           string    `json:"username"`
    PasswordHash       string    `json:"-"`
    Role               Role      `json:"role"`
    MustChangePassword bool      `json:"mustChangePassword"`
    CreatedAt          time.Time `json:"createdAt"`
    UpdatedAt          time.Time `json:"updatedAt"`
}

// PublicUser is the projection handed to clients after login. The browser
// caches it next to the token.
type PublicUser struct {
    ID                 uint64 `json:"id"`
    Username           string `json:"username"`
    Role               Role   `json:"role"`
    MustChangePassword bool   `json:"mustChangePassword"`
}

// Public strips everything but the client-visible fields.
func (u User) Public() PublicUser {
    return PublicUser{
        ID:                 u.ID,
        Username:           u.Username,
        Role:               u.Role,
        MustChangePassword: u.MustChangePassword,
    }
}
