package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"douyindl/pkg/config"
	"douyindl/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage douyindl configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (DOUYINDL_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.douyindl.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration merged from all sources.

Sensitive values like the cookie will be masked.`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# douyindl configuration file
#
# Every option can also be set through DOUYINDL_* environment
# variables, for example DOUYINDL_COOKIE or DOUYINDL_OUTPUT_DIR.

# Links to archive when none are given on the command line
links: []

# API access
douyin:
  # Cookie header value from a logged-in browser session.
  # Prefer 'douyindl auth login' over writing it here.
  cookie: ""
  user_agent: ""
  referer: "https://www.douyin.com/"

rate_limit:
  requests_per_minute: 60

output:
  base_directory: "."
  # Give every post its own subfolder named after date and title
  item_subfolders: true
  # Write a .json metadata sidecar next to each item
  save_metadata: true

download:
  workers: 5
  timeout: 60s
  retry_attempts: 5
  retry_delay: 1s
  # Extra passes over failed files at the end of a run
  sweep_limit: 3

fetch:
  page_size: 35
  page_timeout: 10s
  max_attempts: 5
  # Only archive items posted inside this window (YYYY-MM-DD)
  start_time: ""
  end_time: ""

# Posting surfaces archived for profile links
modes: [post]

mode_table:
  post:
    # 0 means no cap
    limit: 0
    # Stop at the first already-archived item
    incremental: false
  like:
    limit: 0
    incremental: false
  mix:
    limit: 0
    incremental: false
  music:
    limit: 0
    incremental: false

# Companion media saved next to each item
media:
  music: false
  cover: false
  avatar: false

store:
  enabled: true
  path: "./douyindl.json"

logging:
  level: "info"
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".douyindl.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists: %s", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		ui.PrintError("Failed to write configuration file: %v", err)
		os.Exit(1)
	}

	ui.PrintSuccess("Created configuration file: " + configPath)
	fmt.Println("\nEdit the file, then validate it with:")
	fmt.Printf("  douyindl config validate --config %s\n", configPath)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	displayCfg := *cfg
	if displayCfg.Douyin.Cookie != "" {
		if len(displayCfg.Douyin.Cookie) > 8 {
			displayCfg.Douyin.Cookie = displayCfg.Douyin.Cookie[:4] + "..." + displayCfg.Douyin.Cookie[len(displayCfg.Douyin.Cookie)-4:]
		} else {
			displayCfg.Douyin.Cookie = "***"
		}
	}

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		ui.PrintError("Failed to format configuration: %v", err)
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (DOUYINDL_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (auto-discovered)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile == "" {
		possiblePaths := []string{
			".douyindl.yaml",
			".douyindl.yml",
			filepath.Join(os.Getenv("HOME"), ".config", "douyindl", "config.yaml"),
			filepath.Join(os.Getenv("HOME"), ".config", "douyindl", "config.yml"),
			filepath.Join(os.Getenv("HOME"), ".douyindl.yaml"),
			filepath.Join(os.Getenv("HOME"), ".douyindl.yml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			ui.PrintError("No configuration file found")
			fmt.Println("Specify a file with the --config flag.")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating configuration", configFile)

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed: %v", err)
		os.Exit(1)
	}

	var warnings []string
	var problems []string

	if cfg.Douyin.Cookie == "" {
		warnings = append(warnings, "douyin cookie not configured; most endpoints will fail")
	}

	if cfg.Output.BaseDirectory != "" {
		if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		dir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	for _, mode := range cfg.Modes {
		switch mode {
		case config.ModePost, config.ModeLike, config.ModeMix:
		default:
			problems = append(problems, fmt.Sprintf("unknown mode %q (expected post, like, or mix)", mode))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Workers: %d\n", cfg.Download.Workers)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Modes: %v\n", cfg.Modes)
	fmt.Printf("  Record store: %s (enabled: %t)\n", cfg.Store.Path, cfg.Store.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
