package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/slawatch/internal/chat"
)

var tracer = otel.Tracer("github.com/linnemanlabs/slawatch/internal/monitor")

// EngineHooks receives engine events for instrumentation. Nil fields are
// skipped.
type EngineHooks struct {
	OnChannel        func(failed bool, messages int)
	OnDecision       func(d Decision)
	OnTransportError func()
	OnComplete       func(r *Report)
}

// Engine runs one sweep: per channel it builds the conversation window,
// resolves responses for external messages, applies the policy against the
// state store, and hands AlertNow decisions to the dispatcher.
type Engine struct {
	transport  chat.Transport
	classifier *Classifier
	dispatcher *Dispatcher
	policy     Policy
	channels   []string
	lookback   time.Duration
	pageSize   int
	logger     log.Logger
	hooks      EngineHooks
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(t chat.Transport, c *Classifier, d *Dispatcher, policy Policy, channels []string, lookback time.Duration, pageSize int, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{
		transport:  t,
		classifier: c,
		dispatcher: d,
		policy:     policy,
		channels:   channels,
		lookback:   lookback,
		pageSize:   pageSize,
		logger:     logger,
		hooks:      hooks,
	}
}

// Sweep evaluates every configured channel against the store and dispatches
// the run's alerts. Channel-level failures are contained: a transport error
// aborts only that channel. On context expiry the sweep stops early with
// report.DeadlineHit set; the caller still flushes accumulated store
// mutations.
func (e *Engine) Sweep(ctx context.Context, store *StateStore, now time.Time) *Report {
	ctx, span := tracer.Start(ctx, "monitor.Sweep", trace.WithAttributes(
		attribute.Int("slawatch.channels", len(e.channels)),
	))
	defer span.End()

	report := &Report{StartedAt: now}
	members := newRoster(e.transport)
	resolver := NewResolver(e.transport, e.classifier, members)

	var pending []Alert

	for _, channelID := range e.channels {
		if ctx.Err() != nil {
			report.DeadlineHit = true
			break
		}

		L := e.logger.With("channel", channelID)

		window, err := BuildWindow(ctx, e.transport, channelID, e.lookback, e.pageSize, now)
		if err != nil {
			if ctx.Err() != nil {
				report.DeadlineHit = true
				break
			}
			report.ChannelsFailed++
			if e.hooks.OnChannel != nil {
				e.hooks.OnChannel(true, 0)
			}
			L.Error(ctx, err, "window build failed, skipping channel")
			continue
		}

		report.ChannelsScanned++
		report.MessagesSeen += len(window)
		if e.hooks.OnChannel != nil {
			e.hooks.OnChannel(false, len(window))
		}

		pending = append(pending, e.sweepChannel(ctx, L, window, resolver, members, store, report, now)...)

		if ctx.Err() != nil {
			report.DeadlineHit = true
			break
		}
	}

	if len(pending) > 0 && ctx.Err() == nil {
		sent, failed := e.dispatcher.Dispatch(ctx, pending, store, now)
		report.AlertsSent = sent
		report.DispatchFailed = failed
	}

	report.Duration = time.Since(now)
	span.SetAttributes(
		attribute.Int("slawatch.alerts_sent", report.AlertsSent),
		attribute.Int("slawatch.cleared", report.Cleared),
		attribute.Bool("slawatch.deadline_hit", report.DeadlineHit),
	)
	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(report)
	}
	return report
}

// sweepChannel evaluates one channel's window oldest-first so reply-after
// resolution always sees the complete window, and returns the channel's
// AlertNow decisions.
func (e *Engine) sweepChannel(ctx context.Context, L log.Logger, window []chat.Message, resolver *Resolver, members *roster, store *StateStore, report *Report, now time.Time) []Alert {
	var pending []Alert

	for _, msg := range window {
		if ctx.Err() != nil {
			return pending
		}

		author, known, err := members.get(ctx, msg.AuthorID)
		if err != nil {
			report.SkippedMessages++
			if e.hooks.OnTransportError != nil {
				e.hooks.OnTransportError()
			}
			L.Error(ctx, err, "member resolution failed, skipping message", "message", msg.ID, "author", msg.AuthorID)
			continue
		}
		if !known || author.Bot || !e.classifier.IsExternal(author.Roles) {
			continue
		}

		answered, err := resolver.IsAnswered(ctx, msg, window)
		if err != nil {
			report.SkippedMessages++
			if e.hooks.OnTransportError != nil {
				e.hooks.OnTransportError()
			}
			L.Error(ctx, err, "response resolution failed, skipping message", "message", msg.ID)
			continue
		}

		key := Key{ChannelID: msg.ChannelID, MessageID: msg.ID}

		if answered {
			if store.Clear(key) {
				report.Cleared++
				L.Info(ctx, "breach resolved, record cleared", "message", msg.ID)
			}
			continue
		}

		report.Candidates++
		rec, _ := store.Get(key)
		decision := e.policy.Decide(msg, rec, now)
		if e.hooks.OnDecision != nil {
			e.hooks.OnDecision(decision)
		}

		switch decision {
		case AlertNow:
			pending = append(pending, Alert{
				Key:       key,
				AuthorID:  msg.AuthorID,
				Excerpt:   msg.Excerpt,
				Permalink: msg.Permalink,
				Age:       now.Sub(msg.CreatedAt),
			})
		case Suppress:
			report.Suppressed++
		case NoAction:
		}
	}

	return pending
}
