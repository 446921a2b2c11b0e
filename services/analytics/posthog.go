// Package analyticssvc ships product events to PostHog.
package analyticssvc

import (
	"fmt"

	"github.com/posthog/posthog-go"

	"github.com/intellibus/aimasterclass/core"
)

type posthogService struct {
	client posthog.Client
	logger core.Logger
}

var _ core.Analytics = (*posthogService)(nil)

func NewPostHogService(conf *core.Config, logger core.Logger) (*posthogService, error) {
	client, err := posthog.NewWithConfig(conf.PostHogAPIKey, posthog.Config{
		Endpoint: conf.PostHogHost,
	})
	if err != nil {
		return nil, err
	}
	return &posthogService{client: client, logger: logger}, nil
}

func (svc *posthogService) Capture(distinctID, event string, props core.Properties) {
	capture := posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
	}
	if len(props) > 0 {
		p := posthog.NewProperties()
		for k, v := range props {
			p.Set(k, v)
		}
		capture.Properties = p
	}
	if err := svc.client.Enqueue(capture); err != nil {
		svc.logger.Warn(fmt.Sprintf("posthog capture %s: %v", event, err), err)
	}
}

func (svc *posthogService) Close() error {
	return svc.client.Close()
}
