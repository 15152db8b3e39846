package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/aiobot/app"
	corecmd "github.com/m3rciful/aiobot/core/cmd"
)

func main() {
	// Local development convenience; absence of .env is fine.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.New(cfg)
		},
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
