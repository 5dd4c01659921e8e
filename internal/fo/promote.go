package fo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashmap-kz/pgswitch/internal/pg"
)

// ErrPromotionTimeout: the node did not leave recovery within the poll
// window. The wrapped message carries node address and elapsed time.
var ErrPromotionTimeout = errors.New("promotion timeout")

// ErrPromotionInFlight: another session holds the promote advisory lock.
var ErrPromotionInFlight = errors.New("another promotion is in flight")

const (
	DefaultPollInterval = 1 * time.Second
	DefaultPollAttempts = 30
)

// NodePromoter drives a standby into the master role.
type NodePromoter interface {
	Promote(ctx context.Context, connStr string) error
}

// promoteTarget is the slice of pg.Session the promoter needs.
type promoteTarget interface {
	IsInRecovery(ctx context.Context) (bool, error)
	Promote(ctx context.Context) error
	TryAdvisoryLock(ctx context.Context) (bool, error)
	AdvisoryUnlock(ctx context.Context) error
}

type Promoter struct {
	l            *slog.Logger
	connector    *pg.Connector
	pollInterval time.Duration
	pollAttempts int
	advisoryLock bool
}

var _ NodePromoter = &Promoter{}

type PromoterOpts struct {
	PollInterval time.Duration
	PollAttempts int
	AdvisoryLock bool
}

func NewPromoter(connector *pg.Connector, opts *PromoterOpts) *Promoter {
	p := &Promoter{
		l:            slog.With("component", "promoter"),
		connector:    connector,
		pollInterval: DefaultPollInterval,
		pollAttempts: DefaultPollAttempts,
	}
	if opts != nil {
		if opts.PollInterval > 0 {
			p.pollInterval = opts.PollInterval
		}
		if opts.PollAttempts > 0 {
			p.pollAttempts = opts.PollAttempts
		}
		p.advisoryLock = opts.AdvisoryLock
	}
	return p
}

func (p *Promoter) log() *slog.Logger {
	if p.l != nil {
		return p.l
	}
	return slog.With("component", "promoter")
}

func (p *Promoter) Promote(ctx context.Context, connStr string) error {
	sess, err := p.connector.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close(ctx) }()

	return p.promote(ctx, sess, pg.SafeAddr(connStr))
}

// promote issues pg_promote() once and polls the role until it flips.
// Calling it against a node that is already a master is a no-op: the
// runbook allows operators to re-run the command.
func (p *Promoter) promote(ctx context.Context, target promoteTarget, addr string) error {
	inRecovery, err := target.IsInRecovery(ctx)
	if err != nil {
		return err
	}
	if !inRecovery {
		p.log().Info("node is already a master, nothing to do", slog.String("addr", addr))
		return nil
	}

	if p.advisoryLock {
		free, err := target.TryAdvisoryLock(ctx)
		if err != nil {
			return err
		}
		if !free {
			return fmt.Errorf("%w: node %s", ErrPromotionInFlight, addr)
		}
		defer func() { _ = target.AdvisoryUnlock(ctx) }()
	}

	p.log().Info("issuing promotion", slog.String("addr", addr))
	if err := target.Promote(ctx); err != nil {
		return err
	}

	start := time.Now()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		inRecovery, err := target.IsInRecovery(ctx)
		if err != nil {
			// The server restarts its walreceiver teardown during promotion;
			// transient query failures are part of the poll, not fatal.
			p.log().Debug("role poll failed, retrying",
				slog.String("addr", addr),
				slog.Int("attempt", attempt),
				slog.Any("err", err),
			)
			continue
		}
		if !inRecovery {
			p.log().Info("promotion confirmed",
				slog.String("addr", addr),
				slog.Duration("elapsed", time.Since(start)),
				slog.Int("attempts", attempt),
			)
			return nil
		}
	}

	return fmt.Errorf("%w: node %s still in recovery after %s (%d attempts)",
		ErrPromotionTimeout, addr, time.Since(start).Round(time.Millisecond), p.pollAttempts)
}
