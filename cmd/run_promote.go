package cmd

import (
	"context"
	"fmt"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

func runPromote(ctx context.Context, cfg *config.Config, nodeURL string) error {
	promoter := fo.NewPromoter(
		&pg.Connector{ConnectTimeout: cfg.ProbeTimeout()},
		&fo.PromoterOpts{
			PollInterval: cfg.PromotePollInterval(),
			PollAttempts: cfg.Promote.PollAttempts,
			AdvisoryLock: cfg.Promote.AdvisoryLock,
		},
	)

	if err := promoter.Promote(ctx, nodeURL); err != nil {
		return err
	}

	fmt.Printf("node %s is now a master\n", pg.SafeAddr(nodeURL))
	return nil
}
