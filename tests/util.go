package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/intellibus/aimasterclass/core"
	"github.com/intellibus/aimasterclass/core/course"
	"github.com/intellibus/aimasterclass/core/user"
)

// NewConfig returns a config suitable for unit tests: test mode on, a
// throwaway secret and no external providers configured.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "AI Masterclass",
		SecretKey:        []byte("test-secret"),
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "AI Masterclass", Address: "noreply@test.test"},
		MagicLinkTimeout: 15 * time.Minute,
		Server: core.ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, tier, role string,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:          name,
		Email:         email,
		Tier:          tier,
		Role:          role,
		EmailVerified: true,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
		LastLoginAt:   tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Modules returns the six seeded curriculum modules in order.
func Modules() []course.Module {
	mods := []course.Module{
		{Slug: "intro-to-ai", Title: "Introduction to AI", Duration: 720},
		{Slug: "prompt-engineering", Title: "Prompt Engineering", Duration: 900},
		{Slug: "ai-for-productivity", Title: "AI for Productivity", Duration: 840},
		{Slug: "building-with-llms", Title: "Building with LLMs", Duration: 1080},
		{Slug: "ai-automation", Title: "AI Automation", Duration: 960},
		{Slug: "ai-strategy", Title: "AI Strategy", Duration: 780},
	}
	for i := range mods {
		mods[i].ID = mods[i].Slug
		mods[i].Tier = user.TierFree
		mods[i].Order = i + 1
	}
	return mods
}
