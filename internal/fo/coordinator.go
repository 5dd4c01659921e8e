package fo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator states. The set is fixed: there is no automatic recovery
// out of PromotionFailed, an operator has to step in.
type State string

const (
	StateHealthy         State = "HEALTHY"
	StateMasterDown      State = "MASTER_DOWN"
	StateLagCritical     State = "LAG_CRITICAL"
	StatePromoting       State = "PROMOTING"
	StateSwitched        State = "SWITCHED"
	StatePromotionFailed State = "PROMOTION_FAILED"
)

// ErrAborted: the operator declined the confirmation prompt.
var ErrAborted = errors.New("failover aborted by operator")

// Observation is one probe sweep over the pair.
type Observation struct {
	Master     *NodeStatus
	MasterErr  error
	Standby    *NodeStatus
	StandbyErr error
}

// Evaluate is the pure transition function for the observing side of the
// state machine. LagCritical is alert-only and never triggers an action.
func Evaluate(obs *Observation, lagThresholdBytes int64) State {
	if obs.MasterErr != nil {
		return StateMasterDown
	}
	if obs.Master != nil && lagThresholdBytes > 0 &&
		obs.Master.MaxSendLagBytes() > lagThresholdBytes {
		return StateLagCritical
	}
	return StateHealthy
}

// ConfirmFunc gates the MASTER_DOWN -> PROMOTING transition. There is no
// quorum here: a human says yes.
type ConfirmFunc func(summary string) (bool, error)

// EndpointSwitcher rewrites the persisted application endpoint.
type EndpointSwitcher interface {
	Switch(newURL string) error
}

type CoordinatorOpts struct {
	Prober            StatusProber
	Promoter          NodePromoter
	Switcher          EndpointSwitcher
	Confirm           ConfirmFunc
	LagThresholdBytes int64

	// OnStateChange is optional (metrics, alerts).
	OnStateChange func(State)
}

type Coordinator struct {
	l    *slog.Logger
	opts *CoordinatorOpts

	mu    sync.Mutex
	state State
}

func NewCoordinator(opts *CoordinatorOpts) *Coordinator {
	return &Coordinator{
		l:     slog.With("component", "coordinator"),
		opts:  opts,
		state: StateHealthy,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.l.Info("state transition",
			slog.String("from", string(prev)),
			slog.String("to", string(s)),
		)
		if c.opts.OnStateChange != nil {
			c.opts.OnStateChange(s)
		}
	}
}

// Observe runs one probe sweep and applies Evaluate. Used by the monitor
// daemon; never promotes anything.
func (c *Coordinator) Observe(ctx context.Context, masterURL, standbyURL string) *Observation {
	obs := &Observation{}
	obs.Master, obs.MasterErr = c.opts.Prober.Probe(ctx, masterURL)
	if standbyURL != "" {
		obs.Standby, obs.StandbyErr = c.opts.Prober.Probe(ctx, standbyURL)
	}
	c.setState(Evaluate(obs, c.opts.LagThresholdBytes))
	return obs
}

type FailoverRequest struct {
	MasterURL  string // old master; may be empty when it is already gone
	StandbyURL string // promotion target
	NewURL     string // value written as the application endpoint
}

// Failover drives the manual sequence: probe, confirm, promote, switch.
// Strictly sequential; every step must finish before the next starts.
func (c *Coordinator) Failover(ctx context.Context, req *FailoverRequest) error {
	// 1. Probe the target. An already promoted target is fine: the
	// operator is re-running the procedure.
	target, err := c.opts.Prober.Probe(ctx, req.StandbyURL)
	if err != nil {
		return fmt.Errorf("probe promotion target: %w", err)
	}

	// 2. Probe the old master to describe the situation to the operator.
	summary := fmt.Sprintf("promote %s (current role: %s)", target.Addr, target.Role)
	if req.MasterURL != "" {
		master, err := c.opts.Prober.Probe(ctx, req.MasterURL)
		switch {
		case err != nil:
			c.setState(StateMasterDown)
			summary += fmt.Sprintf("; old master unreachable (%v)", err)
		case master.Role == RoleMaster:
			summary += fmt.Sprintf("; WARNING: old master %s is still up and accepting writes", master.Addr)
		}
	}

	// 3. Human gate. Promotion is irreversible.
	if c.opts.Confirm != nil {
		ok, err := c.opts.Confirm(summary)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAborted
		}
	}

	// 4. Promote and poll until the role flips.
	c.setState(StatePromoting)
	if err := c.opts.Promoter.Promote(ctx, req.StandbyURL); err != nil {
		if errors.Is(err, ErrPromotionTimeout) {
			c.setState(StatePromotionFailed)
		}
		return err
	}

	// 5. Rewrite the endpoint only after promotion is confirmed.
	if err := c.opts.Switcher.Switch(req.NewURL); err != nil {
		return err
	}
	c.setState(StateSwitched)

	c.setState(StateHealthy)
	return nil
}
