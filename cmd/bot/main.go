package main

import (
	"log"

	corecmd "github.com/pouyakhodadust-eng/telegram-account-manager/core/cmd"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/app"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(cfg.(*config.Config))
		},
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
