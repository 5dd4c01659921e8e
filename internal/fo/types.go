package fo

import (
	"time"

	"github.com/hashmap-kz/pgswitch/internal/pg"
)

type Role string

const (
	RoleMaster  Role = "master"
	RoleStandby Role = "standby"
	RoleUnknown Role = "unknown"
)

// NodeStatus is the result of a single read-only probe.
type NodeStatus struct {
	Addr     string               `json:"addr"`
	Role     Role                 `json:"role"`
	Links    []pg.ReplicationLink `json:"links,omitempty"`
	Standby  *pg.StandbyPositions `json:"standby,omitempty"`
	ProbedAt time.Time            `json:"probed_at"`
	Elapsed  time.Duration        `json:"elapsed"`
}

// MaxSendLagBytes is the largest send lag across all attached standbys;
// zero when the node has no links or is not a master.
func (s *NodeStatus) MaxSendLagBytes() int64 {
	var max int64
	for _, l := range s.Links {
		if l.SendLagBytes > max {
			max = l.SendLagBytes
		}
	}
	return max
}

// HasConnectedStandby reports whether at least one replication link is
// in the streaming state.
func (s *NodeStatus) HasConnectedStandby() bool {
	for _, l := range s.Links {
		if l.State == "streaming" {
			return true
		}
	}
	return false
}
