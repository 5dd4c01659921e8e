package cmd

import (
	"fmt"

	"github.com/hashmap-kz/pgswitch/config"
	"github.com/hashmap-kz/pgswitch/internal/endpoint"
)

func runSwitch(envFile, newURL string) error {
	if err := endpoint.NewSwitcher(envFile).Switch(newURL); err != nil {
		return err
	}
	fmt.Printf("%s now points at %s\n", endpoint.Key, config.MaskDSN(newURL))
	fmt.Println("NOTE: restart or reload the application to pick up the change")
	return nil
}
