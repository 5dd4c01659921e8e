package fo

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashmap-kz/pgswitch/internal/pg"
)

// StatusProber determines the role and replication state of a node.
type StatusProber interface {
	Probe(ctx context.Context, connStr string) (*NodeStatus, error)
}

type Prober struct {
	l         *slog.Logger
	connector *pg.Connector
}

var _ StatusProber = &Prober{}

func NewProber(connector *pg.Connector) *Prober {
	return &Prober{
		l:         slog.With("component", "prober"),
		connector: connector,
	}
}

func (p *Prober) log() *slog.Logger {
	if p.l != nil {
		return p.l
	}
	return slog.With("component", "prober")
}

// Probe is strictly read-only. A master reports its replication links,
// a standby its receive/replay positions.
func (p *Prober) Probe(ctx context.Context, connStr string) (*NodeStatus, error) {
	start := time.Now()
	addr := pg.SafeAddr(connStr)

	sess, err := p.connector.Connect(ctx, connStr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sess.Close(ctx) }()

	status := &NodeStatus{
		Addr:     addr,
		Role:     RoleUnknown,
		ProbedAt: start,
	}

	inRecovery, err := sess.IsInRecovery(ctx)
	if err != nil {
		return nil, err
	}

	if inRecovery {
		status.Role = RoleStandby
		pos, err := sess.StandbyPositions(ctx)
		if err != nil {
			return nil, err
		}
		status.Standby = &pos
	} else {
		status.Role = RoleMaster
		links, err := sess.ReplicationLinks(ctx)
		if err != nil {
			return nil, err
		}
		status.Links = links
	}

	status.Elapsed = time.Since(start)
	p.log().Debug("probe finished",
		slog.String("addr", addr),
		slog.String("role", string(status.Role)),
		slog.Duration("elapsed", status.Elapsed),
	)
	return status, nil
}
