package discount

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/intellibus/aimasterclass/core"
)

// Request statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusExpired = "expired"
)

// codeExpiryDays is how long an issued code stays valid.
const codeExpiryDays = 7

// Request is a team-discount enquiry from the landing page. Codes are
// issued manually from the admin dashboard, not on submission.
type Request struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	JobTitle  string    `json:"job_title"`
	Status    string    `json:"status"`
	Code      string    `json:"code,omitempty"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type NewRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Company  string `json:"company" validate:"required"`
	JobTitle string `json:"jobTitle" validate:"required"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Name = core.CleanString(nr.Name)
	nr.Email = core.CleanString(nr.Email, true /* lower */)
	nr.Company = core.CleanString(nr.Company)
	nr.JobTitle = core.CleanString(nr.JobTitle)
	return validate.Struct(nr)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=pending sent expired"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true)
	return validate.Struct(us)
}

type QueryFilter struct {
	Status string
	Search string
}

func (f *QueryFilter) Clean() {
	if f == nil {
		return
	}
	f.Status = core.CleanString(f.Status, true)
	if f.Status == "all" {
		f.Status = ""
	}
	f.Search = core.CleanString(f.Search)
}
