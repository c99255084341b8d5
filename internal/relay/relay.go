// Package relay drives the gateway connection for the tailfeed daemon. It
// keeps one session alive with exponential backoff, replays the configured
// subscriptions after every reconnect, and persists delivered publications
// in the log store.
package relay

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tailfeed/tailfeed/internal/config"
	"github.com/tailfeed/tailfeed/internal/connection"
	"github.com/tailfeed/tailfeed/internal/metrics"
	"github.com/tailfeed/tailfeed/internal/notify"
	"github.com/tailfeed/tailfeed/internal/store"
	"github.com/tailfeed/tailfeed/internal/telemetry"
)

const maxReconnectDelay = 5 * time.Minute

// Gateway is the command surface the relay drives. Satisfied by
// *connection.Connector.
type Gateway interface {
	Connect(ctx context.Context, url, token string) error
	Subscribe(handle, logicalName string) error
	Disconnect() error
	Events() <-chan connection.Event
}

// LogStore is the persistence surface the relay writes to. Satisfied by
// *store.Store.
type LogStore interface {
	Insert(ctx context.Context, entries []store.Entry) error
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Alerter delivers incident notifications. Satisfied by *notify.Notifier.
type Alerter interface {
	Send(ctx context.Context, msg notify.Message)
}

// Relay owns the session lifecycle and the publication pipeline.
type Relay struct {
	cfg     *config.Config
	gateway Gateway
	store   LogStore // nil disables persistence
	alerter Alerter  // nil disables notifications
	logger  *zap.Logger

	channels map[string]string // handle → wire channel, from config
	pruner   *cron.Cron
}

// New creates a relay over the given gateway. store and alerter may be nil.
func New(cfg *config.Config, gateway Gateway, logStore LogStore, alerter Alerter, logger *zap.Logger) *Relay {
	channels := make(map[string]string, len(cfg.Gateway.Subscriptions))
	for _, sub := range cfg.Gateway.Subscriptions {
		channels[sub.Handle] = cfg.Gateway.ChannelPrefix + ":" + sub.Channel
	}
	return &Relay{
		cfg:      cfg,
		gateway:  gateway,
		store:    logStore,
		alerter:  alerter,
		logger:   logger,
		channels: channels,
	}
}

// Run connects and keeps the gateway session alive until ctx is cancelled.
// Reconnects automatically with exponential backoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.startPruner(ctx); err != nil {
		return err
	}
	defer r.stopPruner()

	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		wasConnected, err := r.serveSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if wasConnected {
			delay = time.Second
		}

		r.logger.Warn("gateway session ended, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", delay),
		)
		metrics.ReconnectsTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}

		// Exponential backoff with cap
		delay = delay * 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// jitter adds 0-50% random jitter to a duration to prevent thundering herd.
func jitter(d time.Duration) time.Duration {
	max := int64(d / 2)
	if max <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return d
	}
	return d + time.Duration(n.Int64())
}

// serveSession runs one gateway session to completion. Returns whether the
// handshake ever succeeded, which resets the backoff.
func (r *Relay) serveSession(ctx context.Context) (bool, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, r.cfg.Gateway.URL)
	defer span.End()

	if err := r.gateway.Connect(ctx, r.cfg.Gateway.URL, r.cfg.Gateway.Token); err != nil {
		return false, err
	}

	connected := false
	for {
		select {
		case <-ctx.Done():
			r.gateway.Disconnect()
			return connected, ctx.Err()

		case ev := <-r.gateway.Events():
			switch ev.Type {
			case connection.EventConnected:
				connected = true
				r.logger.Info("connected to gateway", zap.String("url", r.cfg.Gateway.URL))
				for _, sub := range r.cfg.Gateway.Subscriptions {
					if err := r.gateway.Subscribe(sub.Handle, sub.Channel); err != nil {
						r.logger.Warn("subscribe failed",
							zap.String("handle", sub.Handle),
							zap.Error(err),
						)
					}
				}

			case connection.EventSubscribed:
				r.logger.Info("subscription confirmed", zap.String("handle", ev.Handle))

			case connection.EventSubscriptionError:
				r.logger.Warn("subscription rejected",
					zap.String("handle", ev.Handle),
					zap.String("error", ev.Err),
				)
				r.alert(ctx, notify.Message{
					Severity: "warning",
					Title:    "subscription rejected",
					Body:     fmt.Sprintf("handle %s: %s", ev.Handle, ev.Err),
				})

			case connection.EventPublication:
				r.storePublication(ctx, ev)

			case connection.EventDisconnected:
				return connected, fmt.Errorf("disconnected: %s", ev.Reason)

			case connection.EventError:
				r.alert(ctx, notify.Message{
					Severity: "critical",
					Title:    "gateway session failed",
					Body:     ev.Err,
				})
				return connected, errors.New(ev.Err)
			}
		}
	}
}

// storePublication decodes a delivered log record and persists it.
func (r *Relay) storePublication(ctx context.Context, ev connection.Event) {
	if r.store == nil {
		return
	}
	channel := r.channels[ev.Handle]

	var entry store.Entry
	if err := json.Unmarshal(ev.Data, &entry); err != nil {
		r.logger.Warn("dropping malformed publication",
			zap.String("handle", ev.Handle),
			zap.Error(err),
		)
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Time == 0 {
		entry.Time = time.Now().UnixMilli()
	}
	if entry.LevelLabel == "" {
		entry.LevelLabel = levelLabel(entry.Level)
	}
	entry.Channel = channel

	ctx, span := telemetry.StartInsertSpan(ctx, channel, 1)
	defer span.End()

	start := time.Now()
	if err := r.store.Insert(ctx, []store.Entry{entry}); err != nil {
		r.logger.Error("store insert failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return
	}
	metrics.RecordInsert(channel, 1, time.Since(start))
}

// levelLabel maps a numeric log level to its label. Levels follow the
// 10..60 convention (trace through fatal).
func levelLabel(level int) string {
	switch {
	case level >= 60:
		return "fatal"
	case level >= 50:
		return "error"
	case level >= 40:
		return "warn"
	case level >= 30:
		return "info"
	case level >= 20:
		return "debug"
	default:
		return "trace"
	}
}

func (r *Relay) alert(ctx context.Context, msg notify.Message) {
	if r.alerter == nil {
		return
	}
	r.alerter.Send(ctx, msg)
}

// startPruner schedules store pruning when a cron schedule is configured.
func (r *Relay) startPruner(ctx context.Context) error {
	if r.store == nil || r.cfg.Store.PruneSchedule == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(r.cfg.Store.PruneSchedule, func() {
		r.Prune(ctx)
	})
	if err != nil {
		return fmt.Errorf("prune schedule %q: %w", r.cfg.Store.PruneSchedule, err)
	}
	c.Start()
	r.pruner = c
	return nil
}

func (r *Relay) stopPruner() {
	if r.pruner != nil {
		r.pruner.Stop()
	}
}

// Prune deletes entries older than the configured retention.
func (r *Relay) Prune(ctx context.Context) {
	if r.store == nil {
		return
	}
	_, span := telemetry.StartPruneSpan(ctx)

	deleted, err := r.store.Prune(ctx, r.cfg.Store.MaxAge())
	if err != nil {
		r.logger.Error("prune failed", zap.Error(err))
		span.End()
		return
	}
	metrics.PruneDeletedTotal.Add(float64(deleted))
	telemetry.EndPruneSpan(span, deleted)
	r.logger.Info("pruned old entries", zap.Int64("deleted", deleted))
}
