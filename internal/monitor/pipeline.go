package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/robfig/cron/v3"

	"github.com/hashmap-kz/pgswitch/internal/alertq"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/monitor/metrics"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

var allStates = []fo.State{
	fo.StateHealthy,
	fo.StateMasterDown,
	fo.StateLagCritical,
	fo.StatePromoting,
	fo.StateSwitched,
	fo.StatePromotionFailed,
}

type Opts struct {
	MasterURL         string
	StandbyURL        string
	CronSpec          string
	LagThresholdBytes int64
	AlertBufferSize   int
	Notifier          alertq.Notifier
}

// Snapshot is the last completed probe sweep, served over HTTP.
type Snapshot struct {
	State      fo.State       `json:"state"`
	Master     *fo.NodeStatus `json:"master,omitempty"`
	MasterErr  string         `json:"master_err,omitempty"`
	Standby    *fo.NodeStatus `json:"standby,omitempty"`
	StandbyErr string         `json:"standby_err,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Pipeline periodically probes the pair and exports the result. It only
// observes: the manual failover path never runs from here.
type Pipeline struct {
	*services.BasicService
	log    *slog.Logger
	opts   *Opts
	coord  *fo.Coordinator
	alerts *alertq.Queue

	mu   sync.Mutex
	last *Snapshot
}

func NewPipeline(prober fo.StatusProber, opts *Opts) *Pipeline {
	p := &Pipeline{
		log:  slog.With("component", "monitor-pipeline"),
		opts: opts,
	}
	p.alerts = alertq.New(opts.AlertBufferSize, opts.Notifier)
	p.coord = fo.NewCoordinator(&fo.CoordinatorOpts{
		Prober:            prober,
		LagThresholdBytes: opts.LagThresholdBytes,
		OnStateChange:     p.onStateChange,
	})

	p.BasicService = services.NewBasicService(nil, p.run, nil).
		WithName("monitor-pipeline")
	return p
}

func (p *Pipeline) run(ctx context.Context) error {
	p.alerts.Start(ctx)

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(p.opts.CronSpec, func() { p.sweep(ctx) })
	if err != nil {
		return fmt.Errorf("invalid monitor cron spec %q: %w", p.opts.CronSpec, err)
	}

	p.log.Info("monitor started",
		slog.String("master", pg.SafeAddr(p.opts.MasterURL)),
		slog.String("standby", pg.SafeAddr(p.opts.StandbyURL)),
		slog.String("cron", p.opts.CronSpec),
	)

	// one immediate sweep, then on schedule
	p.sweep(ctx)
	c.Start()

	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	return nil
}

func (p *Pipeline) sweep(ctx context.Context) {
	start := time.Now()
	obs := p.coord.Observe(ctx, p.opts.MasterURL, p.opts.StandbyURL)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())

	p.recordNode(pg.SafeAddr(p.opts.MasterURL), obs.Master, obs.MasterErr)
	if p.opts.StandbyURL != "" {
		p.recordNode(pg.SafeAddr(p.opts.StandbyURL), obs.Standby, obs.StandbyErr)
	}

	if obs.Master != nil {
		for _, link := range obs.Master.Links {
			client := link.ClientAddr
			if client == "" {
				client = link.ApplicationName
			}
			metrics.SendLagBytes.WithLabelValues(client).Set(float64(link.SendLagBytes))
			metrics.FlushLagBytes.WithLabelValues(client).Set(float64(link.FlushLagBytes))
			metrics.ReplayLagBytes.WithLabelValues(client).Set(float64(link.ReplayLagBytes))
		}
	}

	snap := &Snapshot{
		State:     p.coord.State(),
		Master:    obs.Master,
		Standby:   obs.Standby,
		UpdatedAt: time.Now(),
	}
	if obs.MasterErr != nil {
		snap.MasterErr = obs.MasterErr.Error()
	}
	if obs.StandbyErr != nil {
		snap.StandbyErr = obs.StandbyErr.Error()
	}

	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()
}

func (p *Pipeline) recordNode(addr string, status *fo.NodeStatus, err error) {
	if err != nil {
		metrics.NodeReachable.WithLabelValues(addr).Set(0)
		metrics.NodeRole.WithLabelValues(addr).Set(-1)
		metrics.ProbesTotal.WithLabelValues(addr, probeOutcome(err)).Inc()
		return
	}
	if status == nil {
		return
	}
	metrics.NodeReachable.WithLabelValues(addr).Set(1)
	metrics.ProbesTotal.WithLabelValues(addr, "ok").Inc()
	switch status.Role {
	case fo.RoleMaster:
		metrics.NodeRole.WithLabelValues(addr).Set(1)
	case fo.RoleStandby:
		metrics.NodeRole.WithLabelValues(addr).Set(0)
	default:
		metrics.NodeRole.WithLabelValues(addr).Set(-1)
	}
}

func probeOutcome(err error) string {
	switch {
	case errors.Is(err, pg.ErrAuth):
		return "auth"
	case errors.Is(err, pg.ErrUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}

func (p *Pipeline) onStateChange(s fo.State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1.0
		}
		metrics.CoordinatorState.WithLabelValues(string(st)).Set(v)
	}

	switch s {
	case fo.StateMasterDown:
		p.submitAlert(alertq.Alert{
			Name:    "master-down",
			Node:    pg.SafeAddr(p.opts.MasterURL),
			Message: "master probe failed; manual failover may be required",
		})
	case fo.StateLagCritical:
		p.submitAlert(alertq.Alert{
			Name:    "lag-critical",
			Node:    pg.SafeAddr(p.opts.MasterURL),
			Message: fmt.Sprintf("replication lag over threshold (%d bytes)", p.opts.LagThresholdBytes),
		})
	}
}

func (p *Pipeline) submitAlert(a alertq.Alert) {
	if err := p.alerts.Submit(a); err != nil {
		metrics.AlertsDropped.Inc()
		p.log.Warn("alert dropped", slog.String("name", a.Name), slog.Any("err", err))
	}
}

// Snapshot returns the last sweep; nil before the first one finishes.
func (p *Pipeline) Snapshot() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
