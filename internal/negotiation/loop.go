package negotiation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
	"github.com/xiaot623/dealroom/internal/registry"
	"github.com/xiaot623/dealroom/internal/strategy"
)

// outcome is how a session loop ended.
type outcome struct {
	status     domain.SessionStatus
	finalPrice float64
	reason     string
}

func completed(price float64) outcome {
	return outcome{status: domain.SessionStatusCompleted, finalPrice: price}
}

func failed(format string, args ...interface{}) outcome {
	return outcome{status: domain.SessionStatusFailed, reason: fmt.Sprintf(format, args...)}
}

// sessionRun is the state owned by one session loop.
type sessionRun struct {
	o       *Orchestrator
	handle  *registry.SessionHandle
	buyer   strategy.Negotiator
	seller  strategy.Negotiator
	product domain.Product
	opener  domain.AgentRole
	clock   *sessionClock
	logger  *zap.Logger

	rounds         int
	topicID        string
	topicAttempted bool
}

func (o *Orchestrator) drive(ctx context.Context, r *run, s *sessionRun) {
	defer o.wg.Done()
	defer close(r.done)
	defer o.forget(s.handle.ID())
	defer r.cancel()

	out := s.safeNegotiate(ctx)
	s.finish(ctx, out)
}

// safeNegotiate turns a panic in a strategy into a failed outcome.
func (s *sessionRun) safeNegotiate(ctx context.Context) (out outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("negotiation loop panicked", zap.Any("panic", rec))
			out = failed("internal error: %v", rec)
		}
	}()
	return s.negotiate(ctx)
}

func (s *sessionRun) negotiate(ctx context.Context) outcome {
	first, second := s.buyer, s.seller
	if s.opener == domain.AgentRoleSeller {
		first, second = s.seller, s.buyer
	}

	current, err := first.CreateInitialOffer(s.product)
	if err != nil {
		return failed("initial offer: %v", err)
	}
	if err := s.record(ctx, current); err != nil {
		return failed("initial offer: %v", err)
	}
	opening, _ := current.Offer()

	responder, waiting := second, first
	maxRounds := s.o.cfg.MaxRounds
	for s.rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			return failed("cancelled: %v", err)
		}
		s.rounds++

		obs := responder.Perceive(current)
		decision := responder.Decide(obs, &opening)
		reply, err := responder.Act(decision)
		if err != nil {
			return failed("%s could not act: %v", responder.Identity().AgentID, err)
		}
		if reply == nil {
			return failed("protocol stall: %s produced no message (%s)", responder.Identity().AgentID, decision.Action)
		}
		if err := s.record(ctx, reply); err != nil {
			return failed("failed to record message: %v", err)
		}

		s.logger.Info("round",
			zap.Int("round", s.rounds),
			zap.String("agent_id", reply.AgentID),
			zap.String("type", string(reply.Type)),
		)

		switch reply.Type {
		case domain.MessageTypeAccept:
			offer, ok := reply.Offer()
			if !ok {
				return failed("accept from %s carries no offer", reply.AgentID)
			}
			return completed(offer.TotalPrice)
		case domain.MessageTypeReject:
			reason := ""
			if r, ok := reply.Data.(domain.RejectReason); ok {
				reason = r.Reason
			}
			return failed("rejected by %s: %s", reply.AgentID, reason)
		}

		current = reply
		responder, waiting = waiting, responder

		if s.rounds < maxRounds {
			if err := s.pace(ctx); err != nil {
				return failed("cancelled: %v", err)
			}
		}
	}
	return failed("no agreement within round budget")
}

// pace waits for the configured delay or until ctx ends.
func (s *sessionRun) pace(ctx context.Context) error {
	d := s.o.cfg.RoundDelay
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record hashes msg, appends it to the session log, notifies watchers and
// forwards it to the audit log.
func (s *sessionRun) record(ctx context.Context, msg *domain.SignedMessage) error {
	hash, err := integrity.ContentHash(msg)
	if err != nil {
		return err
	}
	msg.Hash = hash

	if _, err := s.handle.Append(ctx, msg); err != nil {
		return err
	}
	s.o.metrics.MessageLogged(msg.Type)
	s.o.publish(s.handle.ID(), domain.SessionEvent{
		Type:    domain.SessionEventMessage,
		Status:  domain.SessionStatusActive,
		Message: msg.Clone(),
	})

	s.forward(ctx, msg)
	return nil
}

// forward submits msg to the audit log. Failures are logged and counted.
func (s *sessionRun) forward(ctx context.Context, msg *domain.SignedMessage) {
	audit := s.o.audit
	if audit == nil {
		return
	}

	if !s.topicAttempted {
		s.topicAttempted = true
		topicID, err := audit.CreateTopic(ctx)
		if err != nil {
			s.o.metrics.AuditFailure("create_topic")
			s.logger.Error("failed to create audit topic", zap.Error(err))
		} else {
			s.topicID = topicID
			s.handle.SetTopic(ctx, topicID)
		}
	}
	if s.topicID == "" {
		return
	}

	seq, err := audit.SubmitMessage(ctx, s.topicID, msg)
	if err != nil {
		s.o.metrics.AuditFailure("submit")
		s.logger.Error("failed to log message to audit topic",
			zap.String("topic_id", s.topicID),
			zap.String("type", string(msg.Type)),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("message logged to audit topic",
		zap.String("topic_id", s.topicID),
		zap.Int64("seq", seq),
		zap.String("type", string(msg.Type)),
	)
}

// finish records the outcome. The terminal transition happens at most once.
func (s *sessionRun) finish(ctx context.Context, out outcome) {
	now := s.clock.Now().UTC()
	var ok bool
	var price *float64
	if out.status == domain.SessionStatusCompleted {
		ok = s.handle.Complete(ctx, out.finalPrice, now)
		p := out.finalPrice
		price = &p
	} else {
		ok = s.handle.Fail(ctx, now)
	}
	if !ok {
		return
	}

	s.o.metrics.SessionFinished(out.status, s.rounds)
	eventType := domain.SessionEventCompleted
	if out.status == domain.SessionStatusFailed {
		eventType = domain.SessionEventFailed
	}
	s.o.publish(s.handle.ID(), domain.SessionEvent{
		Type:       eventType,
		Status:     out.status,
		FinalPrice: price,
		Reason:     out.reason,
	})

	if out.status == domain.SessionStatusCompleted {
		s.logger.Info("negotiation completed", zap.Float64("final_price", out.finalPrice), zap.Int("rounds", s.rounds))
	} else {
		s.logger.Info("negotiation failed", zap.String("reason", out.reason), zap.Int("rounds", s.rounds))
	}
}
