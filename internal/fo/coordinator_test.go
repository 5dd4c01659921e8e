package fo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hashmap-kz/pgswitch/internal/pg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	statuses map[string]*NodeStatus
	errs     map[string]error
}

func (f *fakeProber) Probe(_ context.Context, connStr string) (*NodeStatus, error) {
	if err, ok := f.errs[connStr]; ok {
		return nil, err
	}
	if st, ok := f.statuses[connStr]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("%w: %s", pg.ErrUnreachable, connStr)
}

type fakePromoter struct {
	err   error
	calls []string
}

func (f *fakePromoter) Promote(_ context.Context, connStr string) error {
	f.calls = append(f.calls, connStr)
	return f.err
}

type fakeSwitcher struct {
	err   error
	calls []string
}

func (f *fakeSwitcher) Switch(newURL string) error {
	f.calls = append(f.calls, newURL)
	return f.err
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		obs       *Observation
		threshold int64
		want      State
	}{
		{
			name: "healthy pair",
			obs: &Observation{
				Master: &NodeStatus{Role: RoleMaster, Links: []pg.ReplicationLink{
					{State: "streaming", SendLagBytes: 1024},
				}},
				Standby: &NodeStatus{Role: RoleStandby},
			},
			threshold: 1 << 20,
			want:      StateHealthy,
		},
		{
			name:      "master unreachable",
			obs:       &Observation{MasterErr: pg.ErrUnreachable},
			threshold: 1 << 20,
			want:      StateMasterDown,
		},
		{
			name: "lag over threshold",
			obs: &Observation{
				Master: &NodeStatus{Role: RoleMaster, Links: []pg.ReplicationLink{
					{State: "streaming", SendLagBytes: 2 << 20},
				}},
			},
			threshold: 1 << 20,
			want:      StateLagCritical,
		},
		{
			name: "lag threshold disabled",
			obs: &Observation{
				Master: &NodeStatus{Role: RoleMaster, Links: []pg.ReplicationLink{
					{State: "streaming", SendLagBytes: 2 << 20},
				}},
			},
			threshold: 0,
			want:      StateHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.obs, tt.threshold))
		})
	}
}

func TestFailover_HappyPath(t *testing.T) {
	const (
		masterURL  = "postgres://app@db1:5432/app"
		standbyURL = "postgres://app@db2:5432/app"
	)

	prober := &fakeProber{
		statuses: map[string]*NodeStatus{
			standbyURL: {Addr: "db2:5432", Role: RoleStandby},
		},
		errs: map[string]error{
			masterURL: fmt.Errorf("%w: db1:5432", pg.ErrUnreachable),
		},
	}
	promoter := &fakePromoter{}
	switcher := &fakeSwitcher{}

	var transitions []State
	var confirmSummary string

	c := NewCoordinator(&CoordinatorOpts{
		Prober:   prober,
		Promoter: promoter,
		Switcher: switcher,
		Confirm: func(summary string) (bool, error) {
			confirmSummary = summary
			return true, nil
		},
		OnStateChange: func(s State) { transitions = append(transitions, s) },
	})

	err := c.Failover(context.Background(), &FailoverRequest{
		MasterURL:  masterURL,
		StandbyURL: standbyURL,
		NewURL:     standbyURL,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{standbyURL}, promoter.calls)
	assert.Equal(t, []string{standbyURL}, switcher.calls)
	assert.Contains(t, confirmSummary, "db2:5432")
	assert.Contains(t, confirmSummary, "unreachable")
	assert.Equal(t,
		[]State{StateMasterDown, StatePromoting, StateSwitched, StateHealthy},
		transitions,
	)
}

func TestFailover_OperatorDeclines(t *testing.T) {
	prober := &fakeProber{
		statuses: map[string]*NodeStatus{
			"standby": {Addr: "db2:5432", Role: RoleStandby},
		},
	}
	promoter := &fakePromoter{}

	c := NewCoordinator(&CoordinatorOpts{
		Prober:   prober,
		Promoter: promoter,
		Switcher: &fakeSwitcher{},
		Confirm:  func(string) (bool, error) { return false, nil },
	})

	err := c.Failover(context.Background(), &FailoverRequest{StandbyURL: "standby"})

	require.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, promoter.calls, "declined failover must not promote")
}

func TestFailover_PromotionTimeoutIsTerminal(t *testing.T) {
	prober := &fakeProber{
		statuses: map[string]*NodeStatus{
			"standby": {Addr: "db2:5432", Role: RoleStandby},
		},
	}
	promoter := &fakePromoter{err: fmt.Errorf("%w: node db2:5432", ErrPromotionTimeout)}
	switcher := &fakeSwitcher{}

	c := NewCoordinator(&CoordinatorOpts{
		Prober:   prober,
		Promoter: promoter,
		Switcher: switcher,
		Confirm:  func(string) (bool, error) { return true, nil },
	})

	err := c.Failover(context.Background(), &FailoverRequest{StandbyURL: "standby"})

	require.ErrorIs(t, err, ErrPromotionTimeout)
	assert.Equal(t, StatePromotionFailed, c.State())
	assert.Empty(t, switcher.calls, "endpoint must not move after a failed promotion")
}

func TestFailover_WarnsWhenOldMasterStillUp(t *testing.T) {
	prober := &fakeProber{
		statuses: map[string]*NodeStatus{
			"master":  {Addr: "db1:5432", Role: RoleMaster},
			"standby": {Addr: "db2:5432", Role: RoleStandby},
		},
	}

	var summary string
	c := NewCoordinator(&CoordinatorOpts{
		Prober:   prober,
		Promoter: &fakePromoter{},
		Switcher: &fakeSwitcher{},
		Confirm: func(s string) (bool, error) {
			summary = s
			return false, nil // just inspecting the prompt
		},
	})

	err := c.Failover(context.Background(), &FailoverRequest{
		MasterURL:  "master",
		StandbyURL: "standby",
	})

	require.ErrorIs(t, err, ErrAborted)
	assert.Contains(t, summary, "still up")
}

func TestFailover_SwitchErrorPropagates(t *testing.T) {
	configErr := errors.New("permission denied")
	prober := &fakeProber{
		statuses: map[string]*NodeStatus{
			"standby": {Addr: "db2:5432", Role: RoleStandby},
		},
	}

	c := NewCoordinator(&CoordinatorOpts{
		Prober:   prober,
		Promoter: &fakePromoter{},
		Switcher: &fakeSwitcher{err: configErr},
		Confirm:  func(string) (bool, error) { return true, nil },
	})

	err := c.Failover(context.Background(), &FailoverRequest{StandbyURL: "standby"})

	require.ErrorIs(t, err, configErr)
	assert.NotEqual(t, StateSwitched, c.State())
}

func TestObserve_UpdatesState(t *testing.T) {
	prober := &fakeProber{
		errs: map[string]error{
			"master": fmt.Errorf("%w: db1:5432", pg.ErrUnreachable),
		},
		statuses: map[string]*NodeStatus{
			"standby": {Addr: "db2:5432", Role: RoleStandby},
		},
	}

	c := NewCoordinator(&CoordinatorOpts{Prober: prober, LagThresholdBytes: 1 << 20})
	obs := c.Observe(context.Background(), "master", "standby")

	require.Error(t, obs.MasterErr)
	assert.Equal(t, StateMasterDown, c.State())
	assert.Equal(t, RoleStandby, obs.Standby.Role)
}
