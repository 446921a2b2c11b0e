package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/intellibus/aimasterclass/core"
)

// Video event types emitted by the player.
const (
	EventPlay     = "play"
	EventPause    = "pause"
	EventSeek     = "seek"
	EventProgress = "progress"
	EventEnded    = "ended"
)

type Module struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	Duration int    `json:"duration"` // seconds
	Tier     string `json:"tier"`     // lowest tier that may play it
	Order    int    `json:"order"`
}

// Progress is the per (user, module) watch state. One row per pair,
// overwritten on every watch event.
type Progress struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ModuleID       string    `json:"module_id"`
	WatchedSeconds int       `json:"watched_seconds"`
	MaxPosition    float64   `json:"max_position"`
	CompletionPct  float64   `json:"completion_pct"`
	Completed      bool      `json:"completed"`
	CompletedAt    time.Time `json:"completed_at,omitempty"` // UTC; zero until first completion
	LastWatchedAt  time.Time `json:"last_watched_at"`        // UTC
	CreatedAt      time.Time `json:"created_at"`             // UTC
}

// VideoEvent is an append-only audit record of raw player events; the
// admin video analytics views aggregate over it.
type VideoEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ModuleID  string    `json:"module_id"`
	EventType string    `json:"event_type"`
	Position  float64   `json:"position"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// WatchEvent is the progress-write payload from the player. Only the
// identifiers are required; numeric fields default to zero and malformed
// values coerce rather than reject.
type WatchEvent struct {
	UserID         string  `json:"userId" validate:"required"`
	ModuleID       string  `json:"moduleId" validate:"required"`
	EventType      string  `json:"eventType" validate:"omitempty,oneof=play pause seek progress ended"`
	WatchedSeconds int     `json:"watchedSeconds"`
	MaxPosition    float64 `json:"maxPosition"`
	CompletionPct  float64 `json:"completionPct"`
	Completed      bool    `json:"completed"`
	Position       float64 `json:"position"`
}

func (ev *WatchEvent) Validate(validate *validator.Validate) error {
	ev.UserID = core.CleanString(ev.UserID)
	ev.ModuleID = core.CleanString(ev.ModuleID)
	ev.EventType = core.CleanString(ev.EventType, true /* lower */)
	return validate.Struct(ev)
}

// ProgressResult is what a progress write returns to the player.
type ProgressResult struct {
	Progress         Progress `json:"progress"`
	OverallPercent   int      `json:"overallPercent"`
	CompletedModules int      `json:"completedModules"`
	TotalModules     int      `json:"totalModules"`
}

// Summary aggregates a user's progress across all modules.
type Summary struct {
	UserID               string     `json:"userId"`
	TotalModules         int        `json:"totalModules"`
	CompletedModules     int        `json:"completedModules"`
	InProgressModules    int        `json:"inProgressModules"`
	CompletionPercentage int        `json:"completionPercentage"`
	WatchTimeSeconds     int        `json:"watchTimeSeconds"`
	LastWatchedAt        *time.Time `json:"lastWatchedAt,omitempty"`
	Modules              []Progress `json:"modules"`
}
