package main

import (
	"github.com/emrgen/notesync/internal/config"
	"github.com/emrgen/notesync/internal/server"
	"github.com/sirupsen/logrus"
)

// runs the server with verbose logs and a throwaway signing secret
func main() {
	cfg := config.LoadConfig()
	cfg.LogLevel = "debug"
	config.ConfigureLogging(cfg)
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = "debug-signing-secret"
	}

	if err := server.Start(cfg); err != nil {
		logrus.Fatal(err)
	}
}
