package main

import (
	"log"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/cmd"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/app"
)

func main() {
	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("drsbot: %v", err)
	}
}
