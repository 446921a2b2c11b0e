package admin

import (
	"time"

	"github.com/intellibus/aimasterclass/core/user"
)

// DashboardStats backs the admin overview page.
type DashboardStats struct {
	TotalUsers          int            `json:"totalUsers"`
	ActiveToday         int            `json:"activeToday"`
	NewThisWeek         int            `json:"newThisWeek"`
	TotalPlays          int            `json:"totalPlays"`
	AvgWatchSeconds     int            `json:"avgWatchSeconds"`
	CompletionRate      float64        `json:"completionRate"` // 0..100
	PendingDiscounts    int            `json:"pendingDiscounts"`
	EmailsSentThisMonth int            `json:"emailsSentThisMonth"`
	RecentUsers         []UserProgress `json:"recentUsers"`
	TopVideos           []VideoStats   `json:"topVideos"`
	RecentActivity      []Activity     `json:"recentActivity"`
}

// UserProgress is a user row joined with progress aggregates for the
// admin users table.
type UserProgress struct {
	user.User
	CompletedModules int        `json:"completedModules"`
	OverallPercent   int        `json:"overallPercent"`
	WatchTimeSeconds int        `json:"watchTimeSeconds"`
	LastWatchedAt    *time.Time `json:"lastWatchedAt,omitempty"`
}

// TierStats counts users per tier for the users page header.
type TierStats struct {
	Free int `json:"free"`
	Paid int `json:"paid"`
}

// VideoStats aggregates engagement for one module.
type VideoStats struct {
	ModuleID        string        `json:"moduleId"`
	Title           string        `json:"title"`
	Plays           int           `json:"plays"`
	UniqueViewers   int           `json:"uniqueViewers"`
	Completions     int           `json:"completions"`
	AvgWatchSeconds int           `json:"avgWatchSeconds"`
	CompletionRate  float64       `json:"completionRate"` // 0..100
	DropOffPoints   []DropOffSpot `json:"dropOffPoints,omitempty"`
}

// DropOffSpot is a pause cluster: pause events bucketed to 10-second
// positions, ranked by count.
type DropOffSpot struct {
	PositionSeconds int `json:"positionSeconds"` // bucket start
	Count           int `json:"count"`
}

// Activity is one line in the recent-activity feed, merging signups and
// player events.
type Activity struct {
	Type      string    `json:"type"` // signup | video_event
	UserEmail string    `json:"userEmail"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"` // UTC
}
