package analyticssvc

import "github.com/intellibus/aimasterclass/core"

// noopService is used when no PostHog key is configured, and in tests.
type noopService struct{}

var _ core.Analytics = (*noopService)(nil)

func NewNoopService() *noopService { return &noopService{} }

func (noopService) Capture(string, string, core.Properties) {}
func (noopService) Close() error                            { return nil }
