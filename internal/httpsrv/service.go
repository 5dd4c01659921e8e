package httpsrv

import (
	"log/slog"
	"time"

	"github.com/hashmap-kz/pgswitch/internal/monitor"
	"github.com/hashmap-kz/pgswitch/internal/version"
)

// Snapshotter exposes the monitor's last probe sweep.
type Snapshotter interface {
	Snapshot() *monitor.Snapshot
}

type StatusResponse struct {
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Cluster *monitor.Snapshot `json:"cluster,omitempty"`
}

type Service interface {
	Status() *StatusResponse
}

type statusSvc struct {
	l       *slog.Logger
	snaps   Snapshotter
	started time.Time
}

var _ Service = &statusSvc{}

func NewService(snaps Snapshotter) Service {
	return &statusSvc{
		l:       slog.With("component", "status-service"),
		snaps:   snaps,
		started: time.Now(),
	}
}

func (s *statusSvc) Status() *StatusResponse {
	s.l.Debug("querying status")
	return &StatusResponse{
		Version: version.Version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Cluster: s.snaps.Snapshot(),
	}
}
