package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"douyindl/pkg/archiver"
	"douyindl/pkg/auth"
	"douyindl/pkg/config"
	"douyindl/pkg/douyin"
	"douyindl/pkg/logger"
	"douyindl/pkg/ui"
	"douyindl/pkg/ui/tui"
)

var (
	// Run command flags
	outputDir   string
	workers     int
	rateLimit   int
	modes       []string
	limit       int
	incremental bool
	noStore     bool
	withMusic   bool
	withCover   bool
	withAvatar  bool
	cookie      string
	accountName string
	useTUI      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <link>...",
	Short: "Archive media from douyin links",
	Long: `Archive media from one or more douyin links.

Accepted link forms:
  - Short share links (v.douyin.com/...)
  - Profile URLs (www.douyin.com/user/...)
  - Collection URLs (www.douyin.com/collection/...)
  - Music URLs (www.douyin.com/music/...)
  - Single post URLs (video, note, or slides share pages)
  - Live room URLs (live.douyin.com/...)

Most endpoints require a logged-in douyin cookie, supplied through:
  - Stored credentials (use 'douyindl auth login' to store)
  - The DOUYINDL_COOKIE environment variable
  - The configuration file`,
	Example: `  # Archive a profile's posts with default settings
  douyindl run https://www.douyin.com/user/MS4wLjABAAAA...

  # Resolve a short share link and download the post it points at
  douyindl run https://v.douyin.com/iRNBho6u/

  # Archive liked posts and collections too, into a specific directory
  douyindl run <profile-url> --mode post,like,mix --path ./archive

  # Fetch only items newer than the last run
  douyindl run <profile-url> --incremental

  # Save the soundtrack and cover image next to each item
  douyindl run <link> --music --cover`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runArchive(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&outputDir, "path", "o", "", "base directory for downloads (default: current directory)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent downloads")
	runCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute")
	runCmd.Flags().StringSliceVar(&modes, "mode", nil, "posting surfaces to archive for profile links (post, like, mix)")
	runCmd.Flags().IntVar(&limit, "limit", 0, "stop after this many items per crawl (0 means all)")
	runCmd.Flags().BoolVar(&incremental, "incremental", false, "stop each crawl at the first already-archived item")
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "disable the record store for this run")
	runCmd.Flags().BoolVar(&withMusic, "music", false, "save the soundtrack next to each item")
	runCmd.Flags().BoolVar(&withCover, "cover", false, "save the cover image next to each item")
	runCmd.Flags().BoolVar(&withAvatar, "avatar", false, "save the author avatar next to each item")
	runCmd.Flags().StringVar(&cookie, "cookie", "", "douyin cookie string (overrides stored credentials)")
	runCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
}

func runArchive(cmd *cobra.Command, args []string) {
	// Build flags map from command line
	flags := make(map[string]interface{})
	if len(args) > 0 {
		links := make([]string, 0, len(args))
		for _, arg := range args {
			if link := strings.TrimSpace(arg); link != "" {
				links = append(links, link)
			}
		}
		flags["links"] = links
	}
	if outputDir != "" {
		flags["path"] = outputDir
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if len(modes) > 0 {
		flags["modes"] = modes
	}
	if limit > 0 {
		flags["limit"] = limit
	}
	if incremental {
		flags["incremental"] = true
	}
	if noStore {
		flags["no-store"] = true
	}
	if cmd.Flags().Changed("music") {
		flags["music"] = withMusic
	}
	if cmd.Flags().Changed("cover") {
		flags["cover"] = withCover
	}
	if cmd.Flags().Changed("avatar") {
		flags["avatar"] = withAvatar
	}
	if cookie != "" {
		flags["cookie"] = cookie
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	// Load configuration
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if len(cfg.Links) == 0 {
		ui.PrintError("No links to archive")
		fmt.Println("\nPass one or more douyin links as arguments, or list them")
		fmt.Println("under 'links:' in the configuration file.")
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logger: %v", err)
		os.Exit(1)
	}
	logger.WithField("version", version).Info("douyindl starting")

	// Resolve the cookie through the credential chain unless one was
	// supplied on the command line or loaded from config/env.
	if cookie == "" {
		resolveCredentials(cfg)
	}

	if cfg.Douyin.Cookie == "" {
		ui.PrintWarning("No douyin cookie configured; most endpoints will fail")
		fmt.Println("\nTo store a cookie securely, run:")
		fmt.Println("  douyindl auth login")
		fmt.Println("\nOr set it in the environment:")
		fmt.Println("  export DOUYINDL_COOKIE='your_cookie_string'")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useTUI {
		runWithTUI(ctx, cfg)
		return
	}

	progress := ui.NewProgress()
	arc, err := archiver.New(cfg, douyin.NopSigner, progress)
	if err != nil {
		ui.PrintError("Failed to initialize archiver: %v", err)
		os.Exit(1)
	}
	defer arc.Close()

	stats, err := arc.Run(ctx, cfg.Links)
	progress.Summary()
	if stats != nil {
		printStats(stats)
		notifyDone(stats, err)
	}
	if err != nil {
		logger.WithError(err).Error("Archive run failed")
		ui.PrintError("Archive run failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Archive run completed")
}

// runWithTUI drives the archiver from a goroutine while the
// bubbletea program owns the terminal.
func runWithTUI(ctx context.Context, cfg *config.Config) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	terminal := tui.New()

	type runOutcome struct {
		stats *archiver.RunStats
		err   error
	}

	archiverDone := make(chan runOutcome, 1)
	go func() {
		arc, err := archiver.New(cfg, douyin.NopSigner, terminal)
		if err != nil {
			archiverDone <- runOutcome{err: err}
			return
		}
		defer arc.Close()

		stats, err := arc.Run(ctx, cfg.Links)
		archiverDone <- runOutcome{stats: stats, err: err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- terminal.Start()
	}()

	select {
	case outcome := <-archiverDone:
		terminal.Stop()
		<-tuiDone
		if outcome.stats != nil {
			printStats(outcome.stats)
			notifyDone(outcome.stats, outcome.err)
		}
		if outcome.err != nil {
			logger.WithError(outcome.err).Error("Archive run failed")
			ui.PrintError("Archive run failed: %v", outcome.err)
			os.Exit(1)
		}
	case err := <-tuiDone:
		if err != nil {
			logger.WithError(err).Error("TUI failed")
			os.Exit(1)
		}
		// The user quit the TUI; cancel the run and collect the
		// archiver result.
		cancel()
		outcome := <-archiverDone
		if outcome.stats != nil {
			printStats(outcome.stats)
		}
	}
}

// resolveCredentials fills cfg.Douyin from stored accounts when the
// config and environment did not already supply a cookie.
func resolveCredentials(cfg *config.Config) {
	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Warn("Credential manager unavailable")
		return
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found: %s", accountName)
			ui.PrintInfo("Available accounts", "Use 'douyindl auth list' to see stored accounts")
			os.Exit(1)
		}
	} else if cfg.Douyin.Cookie != "" {
		logger.Info("Using cookie from configuration")
		return
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			logger.Debug("No stored credentials found")
			return
		}
	}

	cfg.Douyin.Cookie = account.Cookie
	if account.UserAgent != "" {
		cfg.Douyin.UserAgent = account.UserAgent
	}
	logger.WithField("account", account.Name).Info("Using stored credentials")
	ui.PrintInfo("Using account", account.Name)
}

func printStats(stats *archiver.RunStats) {
	if ui.IsQuietMode() {
		return
	}
	fmt.Println()
	ui.PrintInfo("Links", fmt.Sprintf("%d processed, %d failed", stats.Links, stats.FailedLinks))
	ui.PrintInfo("Items", fmt.Sprintf("%d fetched", stats.Fetched))
	ui.PrintInfo("Files", fmt.Sprintf("%d downloaded, %d skipped, %d failed", stats.Downloaded, stats.Skipped, stats.FailedFiles))
	ui.PrintInfo("Transferred", ui.FormatBytes(stats.Bytes))
	ui.PrintInfo("Duration", stats.Duration.Round(time.Second).String())
}

func notifyDone(stats *archiver.RunStats, err error) {
	notifier := ui.NewNotifier()
	if err != nil || stats.FailedFiles > 0 {
		notifier.SendError("douyindl", fmt.Sprintf("Run finished with errors: %d files failed", stats.FailedFiles))
		return
	}
	notifier.SendNotification("douyindl", fmt.Sprintf("Archived %d files (%s)", stats.Downloaded, ui.FormatBytes(stats.Bytes)))
}

// Make run the default command when the first argument is not a
// known subcommand.
func init() {
	origRunE := rootCmd.RunE
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if origRunE != nil {
			return origRunE(cmd, args)
		}
		if len(args) > 0 && !isKnownCommand(args[0]) {
			return runCmd.RunE(runCmd, args)
		}
		return cmd.Help()
	}

	rootCmd.Args = cobra.ArbitraryArgs
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}
