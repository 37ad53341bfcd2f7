package engine

import (
	"context"
	"log/slog"
	"time"

	"sitebot/internal/domain"
)

const (
	defaultConcurrency = 3
	failureText        = "Sorry, something went wrong saving that. Please try again."
	errorText          = "Sorry, I hit a problem processing that message. Please try again."
)

// Loop consumes inbound messages from the bus, runs each through the
// dispatcher with bounded concurrency, applies the resulting mutations and
// publishes the reply outbound.
type Loop struct {
	dispatcher   *Dispatcher
	store        domain.Store
	bus          domain.MessageBus
	logger       *slog.Logger
	concurrency  int
	autoRegister bool
}

type LoopConfig struct {
	Dispatcher   *Dispatcher
	Store        domain.Store
	Bus          domain.MessageBus
	Logger       *slog.Logger
	Concurrency  int
	AutoRegister bool // register unknown senders on first contact
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		dispatcher:   cfg.Dispatcher,
		store:        cfg.Store,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
		autoRegister: cfg.AutoRegister,
	}
}

// Run blocks until the context is cancelled or the bus closes. Messages
// from different users are processed concurrently; the store serializes
// per-user onboarding writes.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("engine loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, engine loop stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.handle(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect handles one message synchronously and returns the reply
// text. Used by the CLI chat path.
func (l *Loop) ProcessDirect(ctx context.Context, channel, chatID, senderID, content string) (string, error) {
	return l.process(ctx, domain.InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) {
	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
	)

	text, err := l.process(ctx, msg)
	if err != nil {
		l.logger.Error("message processing failed", "err", err)
		text = errorText
	}

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: text,
		Format:  "text",
	})
}

// process runs the dispatcher and applies mutations. Mutation application
// failure is distinct from pipeline errors: the success reply describes an
// action that did not take effect, so it is suppressed and replaced.
func (l *Loop) process(ctx context.Context, msg domain.InboundMessage) (string, error) {
	reply, err := l.dispatcher.Process(ctx, msg)
	if err != nil {
		return "", err
	}

	if reply.RegistrationRequired && l.autoRegister {
		if _, err := l.store.RegisterUser(ctx, msg.SenderID, ""); err != nil {
			return "", err
		}
		l.logger.Info("registered first-contact user", "sender", msg.SenderID)
		reply, err = l.dispatcher.Process(ctx, msg)
		if err != nil {
			return "", err
		}
	}

	if len(reply.Mutations) > 0 {
		user, err := l.store.LookupUser(ctx, msg.SenderID)
		if err != nil {
			return failureText, nil
		}
		for _, m := range reply.Mutations {
			if err := l.store.ApplyMutation(ctx, user.ID, m); err != nil {
				l.logger.Error("mutation application failed",
					"kind", m.MutationKind(), "user", user.ID, "err", err)
				return failureText, nil
			}
		}
	}

	return reply.Text, nil
}
