package main

import (
	"github.com/spf13/cobra"

	"visitor-router/internal/app/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.Server.Addr = addr
		}
		return server.Run(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides server.addr)")
}
