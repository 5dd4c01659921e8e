package cmd

import (
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/hashmap-kz/pgswitch/internal/endpoint"
	"github.com/hashmap-kz/pgswitch/internal/fo"
	"github.com/hashmap-kz/pgswitch/internal/pg"
)

// Every failure kind maps to its own exit code, so runbooks and wrappers
// can branch without parsing stderr.
const (
	ExitUnreachable = 12
	ExitAuth        = 13
	ExitTimeout     = 14
	ExitWriteError  = 15
	ExitAborted     = 16
)

func exitCoded(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pg.ErrUnreachable):
		return cli.Exit(err.Error(), ExitUnreachable)
	case errors.Is(err, pg.ErrAuth):
		return cli.Exit(err.Error(), ExitAuth)
	case errors.Is(err, fo.ErrPromotionTimeout):
		return cli.Exit(err.Error(), ExitTimeout)
	case errors.Is(err, endpoint.ErrConfigWrite):
		return cli.Exit(err.Error(), ExitWriteError)
	case errors.Is(err, fo.ErrAborted), errors.Is(err, fo.ErrPromotionInFlight):
		return cli.Exit(err.Error(), ExitAborted)
	default:
		return err
	}
}
