package session

import (
	"context"
	"fmt"

	"github.com/droverhq/drover/internal/api"
	"github.com/droverhq/drover/internal/errs"
)

// ActivityStreamer is the slice of the activity client Ask needs: the
// merged cold+hot stream of a session.
type ActivityStreamer interface {
	Stream(ctx context.Context, sessionID string) (<-chan api.Activity, func() error)
}

// Ask sends a prompt and blocks until the agent's reply. The reply is the
// first agentMessaged activity created after the send, skipping anything
// user-originated. If the session terminates before a reply arrives, Ask
// fails with EarlyTermination. Bound the wait with ctx.
func (e *Engine) Ask(ctx context.Context, streams ActivityStreamer, id, prompt string) (api.Activity, error) {
	const op = errs.Op("session.Ask")

	askStart := e.now()
	if err := e.Send(ctx, id, prompt); err != nil {
		return api.Activity{}, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, errFn := streams.Stream(streamCtx, id)
	for a := range stream {
		if a.Originator == api.OriginatorUser {
			continue
		}
		if a.Terminal() {
			return api.Activity{}, errs.E(op, errs.KindEarlyTermination,
				fmt.Sprintf("session %s ended before the agent replied", id))
		}
		if a.Type() == api.ActivityAgentMessaged && a.CreateTime.After(askStart) {
			return a, nil
		}
	}
	if err := errFn(); err != nil {
		return api.Activity{}, err
	}
	return api.Activity{}, errs.E(op, errs.KindCancelled,
		fmt.Sprintf("cancelled waiting for a reply from session %s", id), ctx.Err())
}
