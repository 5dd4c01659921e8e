package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/endpoint"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

type failoverOpts struct {
	MasterURL  string
	StandbyURL string
	NewURL     string
	EnvFile    string
	AssumeYes  bool
}

func runFailover(ctx context.Context, cfg *config.Config, opts *failoverOpts) error {
	if opts.StandbyURL == "" {
		return fmt.Errorf("--standby is required (or set cluster.standby_url)")
	}
	if opts.EnvFile == "" {
		return fmt.Errorf("--env-file is required (or set main.env_file)")
	}
	if opts.NewURL == "" {
		opts.NewURL = opts.StandbyURL
	}

	connector := &pg.Connector{ConnectTimeout: cfg.ProbeTimeout()}

	confirm := promptConfirm
	if opts.AssumeYes {
		confirm = func(summary string) (bool, error) {
			fmt.Println(summary)
			return true, nil
		}
	}

	coord := fo.NewCoordinator(&fo.CoordinatorOpts{
		Prober: fo.NewProber(connector),
		Promoter: fo.NewPromoter(connector, &fo.PromoterOpts{
			PollInterval: cfg.PromotePollInterval(),
			PollAttempts: cfg.Promote.PollAttempts,
			AdvisoryLock: cfg.Promote.AdvisoryLock,
		}),
		Switcher:          endpoint.NewSwitcher(opts.EnvFile),
		Confirm:           confirm,
		LagThresholdBytes: cfg.Cluster.LagThresholdBytes,
	})

	err := coord.Failover(ctx, &fo.FailoverRequest{
		MasterURL:  opts.MasterURL,
		StandbyURL: opts.StandbyURL,
		NewURL:     opts.NewURL,
	})
	if err != nil {
		return err
	}

	fmt.Printf("failover complete: %s promoted, %s rewritten in %s\n",
		pg.SafeAddr(opts.StandbyURL), endpoint.Key, opts.EnvFile)
	fmt.Println("NOTE: restart or reload the application to pick up the change")
	return nil
}

// promptConfirm gates the irreversible part. Only a literal "yes" counts.
func promptConfirm(summary string) (bool, error) {
	fmt.Println(summary)
	fmt.Print("Promotion is irreversible. Type 'yes' to continue: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(line) == "yes", nil
}
