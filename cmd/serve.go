package cmd

import (
	"github.com/emrgen/notesync/internal/config"
	"github.com/emrgen/notesync/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the http api and the background jobs",
		Run: func(cmd *cobra.Command, args []string) {
			server.NewServer(config.LoadConfig()).Start()
		},
	}
}
