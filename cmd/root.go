package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/neotutor/internal/backend"
	"github.com/joescharf/neotutor/internal/output"
	"github.com/joescharf/neotutor/internal/session"
	"github.com/joescharf/neotutor/internal/store"
	"github.com/joescharf/neotutor/internal/tutors"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	apiClient *backend.Client
	sessMgr   *session.Manager

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "neotutor",
	Short: "NeoTutor - chat with AI tutors trained on YouTube playlists",
	Long: `neotutor is a terminal client for NeoTutor.
Sign in, train a tutor from a YouTube playlist, and ask it questions.
Answers that cite a video come with an embeddable link that starts at
the relevant moment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeDeps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/neotutor/config.yaml)")
}

// envPrefix and envKeyReplacer map "api.base_url" to NEOTUTOR_API_BASE_URL.
const envPrefix = "NEOTUTOR"

var envKeyReplacer = strings.NewReplacer(".", "_")

func initConfig() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default under dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "neotutor.db"))
	viper.SetDefault("api.base_url", "http://localhost:3000")
	viper.SetDefault("api.tutor_url", "http://localhost:3000")
	viper.SetDefault("api.timeout", 30*time.Second)
	viper.SetDefault("session.verify_on_start", false)
	viper.SetDefault("chat.reply_delay", 800*time.Millisecond)
	viper.SetDefault("chat.glamour_style", "auto")
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
	ui.Style = viper.GetString("chat.glamour_style")

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	logger = newLogger(os.Stderr, level, viper.GetString("log.format"))
	slog.SetDefault(logger)

	// Store, client and session are created lazily so config/version
	// commands run without a database or network.
}

// newLogger builds the process logger from the log.* settings.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getClient returns the shared backend client. Its cookie jar persists to
// the store so a session survives between runs.
func getClient(ctx context.Context) (*backend.Client, error) {
	if apiClient != nil {
		return apiClient, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	jar, err := backend.NewPersistentJar(ctx, s, logger)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	apiClient = backend.NewClient(backend.Config{
		BaseURL:  viper.GetString("api.base_url"),
		TutorURL: viper.GetString("api.tutor_url"),
		Timeout:  viper.GetDuration("api.timeout"),
		Jar:      jar,
		Logger:   logger,
	})
	return apiClient, nil
}

// getSession returns the shared, initialized session manager.
func getSession(ctx context.Context) (*session.Manager, error) {
	if sessMgr != nil {
		return sessMgr, nil
	}
	client, err := getClient(ctx)
	if err != nil {
		return nil, err
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	m := session.New(client, s,
		session.WithLogger(logger),
		session.WithVerifyOnStart(viper.GetBool("session.verify_on_start")),
	)
	m.Initialize(ctx)
	sessMgr = m
	return sessMgr, nil
}

// requireSession gates commands that need a signed-in user.
func requireSession(ctx context.Context) (*session.Manager, error) {
	m, err := getSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Require(); err != nil {
		if errors.Is(err, session.ErrAuthRequired) {
			return nil, fmt.Errorf("%w: run 'neotutor auth login' first", err)
		}
		return nil, err
	}
	return m, nil
}

// getTutors returns a tutors service over the shared client and store.
func getTutors(ctx context.Context) (*tutors.Service, error) {
	client, err := getClient(ctx)
	if err != nil {
		return nil, err
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return tutors.New(client, s, logger), nil
}

func closeDeps() {
	if sessMgr != nil {
		sessMgr.Teardown()
		sessMgr = nil
	}
	apiClient = nil
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
