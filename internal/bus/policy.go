package bus

import (
	"context"
	"log/slog"
)

// PolicyBus enforces the communication policy in front of another Sender.
type PolicyBus struct {
	inner  Sender
	policy Authorizer
	logger *slog.Logger
}

// WithPolicy wraps inner so that every send is checked against policy first.
func WithPolicy(inner Sender, policy Authorizer, logger *slog.Logger) *PolicyBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyBus{
		inner:  inner,
		policy: policy,
		logger: logger.With("component", "policy_bus"),
	}
}

// Send drops recipients the sender may not address. When none remain the send is
// refused with a Blocked outcome and nothing is written.
func (p *PolicyBus) Send(ctx context.Context, req SendRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	var allowed, blocked []string
	for _, name := range req.Recipient.Names() {
		if p.policy.IsAllowed(req.Sender, name) {
			allowed = append(allowed, name)
		} else {
			blocked = append(blocked, name)
			p.logger.Warn("communication blocked", "sender", req.Sender, "recipient", name)
		}
	}

	if len(allowed) == 0 {
		p.logger.Warn("all recipients blocked, message not sent", "sender", req.Sender, "recipients", blocked)
		return Denied(req.Sender, blocked), nil
	}

	if len(blocked) > 0 {
		req.Recipient = Multiple(allowed...)
	}

	out, err := p.inner.Send(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if out.Receipt != nil && len(blocked) > 0 {
		out.Receipt.Blocked = blocked
	}
	return out, nil
}
