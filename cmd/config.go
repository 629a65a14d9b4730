package cmd

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc is swapped out by tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "neotutor"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage where neotutor finds its backend, stores its session
and transcripts, and how it renders answers.

Values come from, in order of precedence: NEOTUTOR_* environment variables
(a .env file in the working directory is loaded first), ~/.config/neotutor/config.yaml,
then built-in defaults. 'neotutor config' with no subcommand runs 'show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write config.yaml seeded with the current values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every key, its value, where it came from and any problem",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

const configTemplate = `# neotutor configuration
# See: neotutor config show (for effective values and sources)

# State/data directory (default: ~/.config/neotutor)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/neotutor/neotutor.db)
# db_path: {{ .DBPath }}

# Backend endpoints
api:
  # Origin serving /api/auth/*
  base_url: "{{ .BaseURL }}"

  # Origin serving /query, /history and ingestion
  tutor_url: "{{ .TutorURL }}"

  # Per-request timeout
  timeout: "{{ .Timeout }}"

# Session
session:
  # Verify the mirrored session with the backend on every start (default: false)
  verify_on_start: {{ .VerifyOnStart }}

# Chat
chat:
  # Pause before showing each reply
  reply_delay: "{{ .ReplyDelay }}"

  # glamour style for rendered answers: auto, dark, light, notty, ascii
  glamour_style: "{{ .GlamourStyle }}"

# Logging
log:
  # debug, info, warn, error
  level: "{{ .LogLevel }}"

  # text or json
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	StateDir      string
	DBPath        string
	BaseURL       string
	TutorURL      string
	Timeout       string
	VerifyOnStart bool
	ReplyDelay    string
	GlamourStyle  string
	LogLevel      string
	LogFormat     string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data := configTemplateData{
		StateDir:      viper.GetString("state_dir"),
		DBPath:        viper.GetString("db_path"),
		BaseURL:       viper.GetString("api.base_url"),
		TutorURL:      viper.GetString("api.tutor_url"),
		Timeout:       viper.GetDuration("api.timeout").String(),
		VerifyOnStart: viper.GetBool("session.verify_on_start"),
		ReplyDelay:    viper.GetDuration("chat.reply_delay").String(),
		GlamourStyle:  viper.GetString("chat.glamour_style"),
		LogLevel:      viper.GetString("log.level"),
		LogFormat:     viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeys is the display order for config show.
var configKeys = []string{
	"state_dir",
	"db_path",
	"api.base_url",
	"api.tutor_url",
	"api.timeout",
	"session.verify_on_start",
	"chat.reply_delay",
	"chat.glamour_style",
	"log.level",
	"log.format",
}

// envVarFor names the environment variable viper reads for key.
func envVarFor(key string) string {
	return envPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	problems := 0
	for _, key := range configKeys {
		fmt.Fprintf(ui.Out, "  %-26s %v  %s\n", key, viper.Get(key), detectSource(key, fileValues))
		if msg := checkConfigValue(key); msg != "" {
			ui.Warning("%s: %s", key, msg)
			problems++
		}
	}
	if problems > 0 {
		fmt.Fprintln(ui.Out)
		ui.Warning("%d setting(s) will fall back or fail at runtime", problems)
	}
	return nil
}

var (
	validLogLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats    = []string{"text", "json"}
	validGlamourStyles = []string{"auto", "dark", "light", "notty", "ascii", "dracula", "pink", "tokyo-night"}
)

// checkConfigValue returns a short description of what is wrong with the
// effective value of key, or "" when it is usable.
func checkConfigValue(key string) string {
	switch key {
	case "api.base_url", "api.tutor_url":
		u, err := url.Parse(viper.GetString(key))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "must be an absolute http(s) URL"
		}
	case "api.timeout":
		if viper.GetDuration(key) <= 0 {
			return "must be a positive duration such as 30s"
		}
	case "chat.reply_delay":
		if viper.GetDuration(key) < 0 {
			return "must not be negative"
		}
	case "chat.glamour_style":
		if !slices.Contains(validGlamourStyles, viper.GetString(key)) {
			return "unknown style, want one of " + strings.Join(validGlamourStyles, ", ")
		}
	case "log.level":
		if !slices.Contains(validLogLevels, strings.ToLower(viper.GetString(key))) {
			return "unknown level, want one of " + strings.Join(validLogLevels, ", ")
		}
	case "log.format":
		if !slices.Contains(validLogFormats, viper.GetString(key)) {
			return "unknown format, want text or json"
		}
	}
	return ""
}

// readConfigFileValues reports which dotted keys are set in the YAML file.
// Commented-out keys do not count.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource labels where the effective value of key came from.
func detectSource(key string, fileValues map[string]bool) string {
	envVar := envVarFor(key)
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'neotutor config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
