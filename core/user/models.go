package user

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/intellibus/aimasterclass/core"
)

// Tiers gate which course modules are playable.
const (
	TierFree = "free"
	TierPaid = "paid"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Company       string    `json:"company,omitempty"`
	JobTitle      string    `json:"job_title,omitempty"`
	Tier          string    `json:"tier"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	PaidAt        time.Time `json:"paid_at,omitempty"`     // UTC; zero until checkout
	AmountPaid    int       `json:"amount_paid,omitempty"` // cents
	CreatedAt     time.Time `json:"created_at"`            // UTC
	UpdatedAt     time.Time `json:"updated_at"`            // UTC
	LastLoginAt   time.Time `json:"last_login_at"`         // UTC
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
func (u *User) IsPaid() bool  { return u.Tier == TierPaid }

// DisplayName is what emails greet the user with.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return "there"
}

// MagicLinkRequest asks for a sign-in link to be emailed.
type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *MagicLinkRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

// VerifyMagicLink carries the uid/token pair from the emailed link.
type VerifyMagicLink struct {
	UID   string `json:"uid" query:"uid" validate:"required"`
	Token string `json:"token" query:"token" validate:"required"`
}

func (v *VerifyMagicLink) Validate(validate *validator.Validate) error {
	v.UID = core.CleanString(v.UID)
	v.Token = core.CleanString(v.Token)
	return validate.Struct(v)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
	Tier     string `json:"tier" validate:"omitempty,oneof=free paid"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Company = core.CleanString(uu.Company)
	uu.JobTitle = core.CleanString(uu.JobTitle)
	return validate.Struct(uu)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Tier        string    `query:"tier"`
	Role        string    `query:"role"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Tier == "" && qf.Role == "" && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tier = core.CleanString(qf.Tier, true /* lower */)
	if qf.Tier == "all" {
		qf.Tier = ""
	}
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}
