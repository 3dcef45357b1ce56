package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/kernel"
)

// User is the local shadow of an identity held by Keycloak, plus the
// profile fields only this service stores.
type User struct {
	ID             kernel.UserID     `json:"id"`
	Email          string            `json:"email"`
	Username       string            `json:"username"`
	KeycloakUserID kernel.IdentityID `json:"keycloakUserId,omitempty"`
	SSOProvider    iam.SSOProvider   `json:"ssoProvider,omitempty"`
	PhoneNumber    string            `json:"phoneNumber,omitempty"`
	Address        string            `json:"address,omitempty"`
	Description    string            `json:"description,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// NewUser builds a record for an identity not yet linked to Keycloak.
func NewUser(email, username string, provider iam.SSOProvider) *User {
	now := time.Now().UTC()
	return &User{
		ID:          kernel.NewUserID(),
		Email:       NormalizeEmail(email),
		Username:    NormalizeUsername(username),
		SSOProvider: provider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsSSO reports whether the account was created through an OAuth provider
// and so cannot log in with a password.
func (u *User) IsSSO() bool { return u.SSOProvider.IsSSO() }

func (u *User) IsLinked() bool { return !u.KeycloakUserID.IsEmpty() }

// ApplyProfile sets the locally stored profile fields present in p.
func (u *User) ApplyProfile(p ProfileUpdate) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&u.PhoneNumber, p.PhoneNumber)
	set(&u.Address, p.Address)
	set(&u.Description, p.Description)
	u.UpdatedAt = time.Now().UTC()
}

// AppSetting is a provisioned key/value pair.
type AppSetting struct {
	Key   string `db:"setting_key" json:"settingKey"`
	Value string `db:"setting_value" json:"settingValue"`
}

// SettingPasswordDefault holds the shared password given to accounts
// created through OAuth.
const SettingPasswordDefault = "PASSWORD_DEFAULT"

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername folds a username the way Keycloak stores it.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Registration is a password sign-up request.
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Validate requires every field and a well-formed email.
func (r *Registration) Validate() error {
	r.Username = NormalizeUsername(r.Username)
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)

	if r.Username == "" || r.Email == "" || r.Password == "" || r.FirstName == "" || r.LastName == "" {
		return iam.ErrValidation("")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return iam.ErrValidation("Invalid email address.").WithDetail("field", "email")
	}
	return nil
}

// ProfileUpdate carries the editable profile fields; nil fields are left
// unchanged. Username and email are not editable.
type ProfileUpdate struct {
	FirstName   *string `json:"firstName"`
	LastName    *string `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber"`
	Address     *string `json:"address"`
	Description *string `json:"description"`
}

// ChangesNames reports whether the update touches names held by Keycloak.
func (p ProfileUpdate) ChangesNames() bool {
	return p.FirstName != nil || p.LastName != nil
}

// Profile is a local record merged with the names held by Keycloak.
type Profile struct {
	ID          kernel.UserID `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	SSOProvider *string       `json:"ssoProvider"`
	PhoneNumber string        `json:"phoneNumber"`
	Address     string        `json:"address"`
	Description string        `json:"description"`
}

func NewProfile(u *User, firstName, lastName string) *Profile {
	p := &Profile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   firstName,
		LastName:    lastName,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		Description: u.Description,
	}
	if u.IsSSO() {
		provider := string(u.SSOProvider)
		p.SSOProvider = &provider
	}
	return p
}
