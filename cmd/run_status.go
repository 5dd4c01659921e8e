package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hashmap-kz/pgswitch/cmd/cmdutils"
	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/httpsrv"
)

func runStatus(ctx context.Context, cfg *config.Config, addr string, jsonOut bool) error {
	baseURL, err := cmdutils.Addr(addr)
	if err != nil {
		return err
	}

	client := resty.New()
	client.SetRetryCount(0)
	client.SetTimeout(5 * time.Second)

	var status httpsrv.StatusResponse
	resp, err := client.R().
		SetContext(ctx).
		SetAuthToken(cfg.Monitor.HTTPToken).
		SetResult(&status).
		Get(baseURL + "/status")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status request failed: %s: %d", baseURL, resp.StatusCode())
	}

	if jsonOut {
		out, err := json.MarshalIndent(&status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("version: %s\n", status.Version)
	fmt.Printf("uptime:  %s\n", status.Uptime)
	if status.Cluster == nil {
		fmt.Println("cluster: no probe sweep finished yet")
		return nil
	}
	fmt.Printf("state:   %s\n", status.Cluster.State)
	if status.Cluster.Master != nil {
		fmt.Printf("master:  %s (%s)\n", status.Cluster.Master.Addr, status.Cluster.Master.Role)
	}
	if status.Cluster.MasterErr != "" {
		fmt.Printf("master:  ERROR: %s\n", status.Cluster.MasterErr)
	}
	if status.Cluster.Standby != nil {
		fmt.Printf("standby: %s (%s)\n", status.Cluster.Standby.Addr, status.Cluster.Standby.Role)
	}
	if status.Cluster.StandbyErr != "" {
		fmt.Printf("standby: ERROR: %s\n", status.Cluster.StandbyErr)
	}
	fmt.Printf("updated: %s\n", status.Cluster.UpdatedAt.Format(time.RFC3339))
	return nil
}
