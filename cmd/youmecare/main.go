package main

import (
	"context"
	"log"

	"github.com/YouMeAI/YouMeCare/core/bootstrap"
	corecmd "github.com/YouMeAI/YouMeCare/core/cmd"
	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return coreconfig.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return bootstrap.Run(context.Background(), bootstrap.Options{Config: cfg.CoreConfig()})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
