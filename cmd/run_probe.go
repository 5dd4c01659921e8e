package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

func runProbe(ctx context.Context, cfg *config.Config, nodeURL string, jsonOut bool) error {
	prober := fo.NewProber(&pg.Connector{ConnectTimeout: cfg.ProbeTimeout()})

	status, err := prober.Probe(ctx, nodeURL)
	if err != nil {
		return err
	}

	if jsonOut {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("node: %s\n", status.Addr)
	fmt.Printf("role: %s\n", status.Role)
	switch status.Role {
	case fo.RoleMaster:
		if len(status.Links) == 0 {
			fmt.Println("links: none (no standby attached)")
			break
		}
		for _, l := range status.Links {
			fmt.Printf("link: client=%s app=%s state=%s sync=%s send_lag=%d flush_lag=%d replay_lag=%d\n",
				l.ClientAddr, l.ApplicationName, l.State, l.SyncState,
				l.SendLagBytes, l.FlushLagBytes, l.ReplayLagBytes,
			)
		}
	case fo.RoleStandby:
		fmt.Printf("receive_lsn: %s\n", status.Standby.ReceiveLSN)
		fmt.Printf("replay_lsn:  %s\n", status.Standby.ReplayLSN)
	}
	fmt.Printf("elapsed: %s\n", status.Elapsed.Round(time.Millisecond))
	return nil
}
