package core

import (
	"context"
	"time"
)

const agentStatusInterval = 3 * time.Second

// statusPoller periodically asks the backend whether the agent is up and
// reports the result. It only observes; turn state is never touched based on
// liveness, so an unreachable backend surfaces as failed turns, not as a
// frozen state machine.
type statusPoller struct {
	service  AgentStatusService
	onStatus func(connected bool)
}

func (p *statusPoller) run(ctx context.Context) {
	if p.service == nil {
		return
	}

	p.check(ctx)
	ticker := time.NewTicker(agentStatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *statusPoller) check(ctx context.Context) {
	connected, err := p.service.AgentStatus(ctx)
	p.onStatus(connected && err == nil)
}
