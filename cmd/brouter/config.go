package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/bugrouter/internal/config"
	"github.com/rohankatakam/bugrouter/internal/graph"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage BugRouter configuration",
	Long:  `View, initialize and validate BugRouter configuration.`,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default settings",
	RunE:  runConfigInit,
}

func init() {
	configValidateCmd.Flags().String("for", string(config.ValidationContextAll), "what to validate for: ingest, assign, all")
	configValidateCmd.Flags().Bool("offline", false, "skip connecting to the graph database")
	configInitCmd.Flags().String("path", filepath.Join(".bugrouter", "config.yaml"), "where to write the file")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("for")
	ctx := config.ValidationContext(target)
	switch ctx {
	case config.ValidationContextIngest, config.ValidationContextAssign, config.ValidationContextAll:
	default:
		return fmt.Errorf("unknown validation target %q (want ingest, assign or all)", target)
	}

	result := cfg.Validate(ctx)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if result.HasErrors() {
		return result.Err()
	}

	offline, _ := cmd.Flags().GetBool("offline")
	if !offline && ctx != config.ValidationContextAssign && cfg.Graph.Enabled() {
		if err := checkGraph(cmd.Context(), cfg.Graph); err != nil {
			return err
		}
		fmt.Printf("Graph database reachable at %s\n", cfg.Graph.URI)
	}
	fmt.Println("Configuration is valid")
	return nil
}

// checkGraph connects to the graph database and runs a health check
func checkGraph(ctx context.Context, gc config.GraphConfig) error {
	client, err := graph.NewClient(ctx, gc)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())
	return client.HealthCheck(ctx)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	shown.GitHub.Token = config.MaskToken(shown.GitHub.Token)
	shown.Graph.Password = config.MaskToken(shown.Graph.Password)
	shown.Availability.RedisPassword = config.MaskToken(shown.Availability.RedisPassword)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
