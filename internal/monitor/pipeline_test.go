package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashmap-kz/pgswitch/internal/alertq"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

type fakeProber struct {
	mu       sync.Mutex
	statuses map[string]*fo.NodeStatus
	errs     map[string]error
}

func (f *fakeProber) Probe(_ context.Context, connStr string) (*fo.NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[connStr]; ok {
		return nil, err
	}
	return f.statuses[connStr], nil
}

func TestPipeline_SweepBuildsSnapshot(t *testing.T) {
	prober := &fakeProber{
		statuses: map[string]*fo.NodeStatus{
			"master": {Addr: "db1:5432", Role: fo.RoleMaster, Links: []pg.ReplicationLink{
				{ClientAddr: "10.0.0.2", State: "streaming", SendLagBytes: 512},
			}},
			"standby": {Addr: "db2:5432", Role: fo.RoleStandby},
		},
	}

	p := NewPipeline(prober, &Opts{
		MasterURL:         "master",
		StandbyURL:        "standby",
		LagThresholdBytes: 1 << 20,
		AlertBufferSize:   4,
	})

	require.Nil(t, p.Snapshot())

	p.sweep(context.Background())

	snap := p.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, fo.StateHealthy, snap.State)
	assert.Equal(t, fo.RoleMaster, snap.Master.Role)
	assert.Equal(t, fo.RoleStandby, snap.Standby.Role)
	assert.Empty(t, snap.MasterErr)
	assert.WithinDuration(t, time.Now(), snap.UpdatedAt, time.Minute)
}

func TestPipeline_MasterDownProducesAlert(t *testing.T) {
	prober := &fakeProber{
		errs: map[string]error{
			"master": fmt.Errorf("%w: db1:5432", pg.ErrUnreachable),
		},
		statuses: map[string]*fo.NodeStatus{
			"standby": {Addr: "db2:5432", Role: fo.RoleStandby},
		},
	}

	var mu sync.Mutex
	var got []alertq.Alert

	p := NewPipeline(prober, &Opts{
		MasterURL:       "master",
		StandbyURL:      "standby",
		AlertBufferSize: 4,
		Notifier: func(_ context.Context, a alertq.Alert) {
			mu.Lock()
			got = append(got, a)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.alerts.Start(ctx)

	p.sweep(ctx)

	assert.Equal(t, fo.StateMasterDown, p.Snapshot().State)
	assert.Contains(t, p.Snapshot().MasterErr, "unreachable")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Name == "master-down"
	}, time.Second, 10*time.Millisecond)
}

func TestPipeline_StateChangeAlertsOnlyOnTransition(t *testing.T) {
	prober := &fakeProber{
		errs: map[string]error{
			"master": fmt.Errorf("%w: db1:5432", pg.ErrUnreachable),
		},
	}

	var mu sync.Mutex
	var count int

	p := NewPipeline(prober, &Opts{
		MasterURL:       "master",
		AlertBufferSize: 4,
		Notifier: func(_ context.Context, _ alertq.Alert) {
			mu.Lock()
			count++
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.alerts.Start(ctx)

	// two sweeps with the same failure: one transition, one alert
	p.sweep(ctx)
	p.sweep(ctx)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}
