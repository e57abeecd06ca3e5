package profile

import "time"

// Profile is the account information shown for a principal.
type Profile struct {
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	PhotoURL    string    `json:"photoURL"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Update carries the fields to change. Nil fields are left untouched.
type Update struct {
	DisplayName *string `json:"displayName,omitempty"`
	Email       *string `json:"email,omitempty"`
	PhotoURL    *string `json:"photoURL,omitempty"`
}

// Profile keys as stored per owner.
const (
	KeyDisplayName = "displayName"
	KeyEmail       = "email"
	KeyPhotoURL    = "photoURL"
	KeyCreatedAt   = "createdAt"
)

// EditableKeys lists the keys a client may set.
var EditableKeys = []string{KeyDisplayName, KeyEmail, KeyPhotoURL}
