package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/unstuck-app/unstuck/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the effective configuration after merging defaults, the
user config (~/.config/unstuck/config.yaml), any project-local
.unstuck.yaml, and environment variables.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		apiKey := "(not set)"
		if cfg.Anthropic.APIKey != "" {
			apiKey = "(set)"
		}

		fmt.Printf("server.addr:        %s\n", cfg.Server.Addr)
		fmt.Printf("database.path:      %s\n", orDefault(cfg.Database.Path, "(default)"))
		fmt.Printf("anthropic.api_key:  %s\n", apiKey)
		fmt.Printf("anthropic.model:    %s\n", cfg.Anthropic.Model)
		fmt.Printf("anthropic.bedrock:  %v\n", cfg.Anthropic.UseBedrock)
		fmt.Printf("auth.provider_url:  %s\n", orDefault(cfg.Auth.ProviderURL, "(not set)"))
		fmt.Printf("auth.session_ttl:   %s\n", cfg.Auth.SessionTTL)
		fmt.Printf("timeouts.generate:  %s\n", cfg.Timeouts.Generate)
		fmt.Printf("timeouts.shutdown:  %s\n", cfg.Timeouts.Shutdown)

		fmt.Println()
		fmt.Printf("user config:    %s\n", config.GetUserConfigPath())
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("project config: %s\n", project)
		}

		if cfg.Anthropic.APIKey == "" {
			color.Yellow("\nNo API key configured. Set ANTHROPIC_API_KEY or anthropic.api_key.")
		}
	},
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
