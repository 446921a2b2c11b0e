package notification

import (
	"time"

	"github.com/intellibus/aimasterclass/core"
)

// Row statuses. pending rows belong to the outbox; the rest are final
// except sent, which tracking may advance to opened/clicked.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusOpened  = "opened"
	StatusClicked = "clicked"
	StatusFailed  = "failed"
	StatusLogged  = "logged" // no provider configured, send skipped
)

// Stored notification types.
const (
	TypeWelcome      = "welcome"
	TypeReminder     = "reminder"
	TypeProgress     = "progress"
	TypeCompletion   = "completion"
	TypeMilestone25  = "milestone_25"
	TypeMilestone50  = "milestone_50"
	TypeMilestone75  = "milestone_75"
	TypeMilestone100 = "milestone_100"
	TypeOffer        = "offer"
	TypeDiscountCode = "discount_code"
)

// Notification is the audit row written once per send attempt. Milestone
// types are unique per user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	SentAt    time.Time `json:"sent_at,omitempty"`    // UTC
	OpenedAt  time.Time `json:"opened_at,omitempty"`  // UTC
	ClickedAt time.Time `json:"clicked_at,omitempty"` // UTC
	CreatedAt time.Time `json:"created_at"`           // UTC
}

type QueryFilter struct {
	Status string `query:"status"`
	Search string `query:"search"` // matches recipient email
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Search = core.CleanString(qf.Search, true /* lower */)
}

// StatusCounts backs the admin email dashboard.
type StatusCounts struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Opened  int `json:"opened"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// ProgressStats is embedded in progress-report emails.
type ProgressStats struct {
	Completed        int `json:"completed"`
	Total            int `json:"total"`
	WatchTimeSeconds int `json:"watchTime"`
	Percentage       int `json:"percentage"`
}
