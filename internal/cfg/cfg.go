package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

// Config holds slawatch's application configuration, registered as flags and
// fillable from SLAWATCH_-prefixed environment variables.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	SlackBotToken     string
	SlackWorkspaceURL string
	SlackWebhookURL   string
	AlertChannelID    string
	Channels          string
	ExternalRoles     string
	InternalRoles     string

	LookbackHours int
	PageSize      int

	WaitMinutes       int
	CooldownMinutes   int
	QuietHoursStart   string
	QuietHoursEnd     string
	QuietHoursZone    string
	UrgencyFloorHours int

	BatchSize           int
	BatchSpacingSeconds int

	SweepSchedule      string
	RunDeadlineSeconds int

	DatabaseURL string
	StateFile   string

	ClaudeAPIKey string
	ClaudeModel  string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on the breach API")

	fs.StringVar(&c.SlackBotToken, "slack-bot-token", "", "Slack bot token for channel history, reactions, and alert delivery")
	fs.StringVar(&c.SlackWorkspaceURL, "slack-workspace-url", "", "Slack workspace base URL used to build message permalinks")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for sweep report notifications")
	fs.StringVar(&c.AlertChannelID, "alert-channel", "", "channel ID breach alerts are posted to")
	fs.StringVar(&c.Channels, "channels", "", "comma-separated channel IDs to monitor")
	fs.StringVar(&c.ExternalRoles, "external-roles", "", "comma-separated role identifiers marking monitored (client) participants")
	fs.StringVar(&c.InternalRoles, "internal-roles", "", "comma-separated role identifiers marking qualifying (staff) responders")

	fs.IntVar(&c.LookbackHours, "lookback-hours", 24, "conversation window lookback in hours (1..168)")
	fs.IntVar(&c.PageSize, "page-size", 100, "messages per history page (1..200)")

	fs.IntVar(&c.WaitMinutes, "wait-minutes", 45, "minimum unanswered age in minutes before the first alert")
	fs.IntVar(&c.CooldownMinutes, "cooldown-minutes", 30, "minimum minutes between repeat alerts for the same message")
	fs.StringVar(&c.QuietHoursStart, "quiet-hours-start", "", "quiet hours start as HH:MM (empty disables quiet hours)")
	fs.StringVar(&c.QuietHoursEnd, "quiet-hours-end", "", "quiet hours end as HH:MM")
	fs.StringVar(&c.QuietHoursZone, "quiet-hours-zone", "UTC", "IANA time zone quiet hours are evaluated in")
	fs.IntVar(&c.UrgencyFloorHours, "urgency-floor-hours", 12, "age in hours past which a breach alerts even during quiet hours")

	fs.IntVar(&c.BatchSize, "batch-size", 5, "alerts per dispatched message (1..50)")
	fs.IntVar(&c.BatchSpacingSeconds, "batch-spacing-seconds", 2, "mandatory pause between alert batches in seconds")

	fs.StringVar(&c.SweepSchedule, "sweep-schedule", "@every 5m", "cron schedule for sweeps (robfig/cron syntax)")
	fs.IntVar(&c.RunDeadlineSeconds, "run-deadline-seconds", 240, "hard wall-clock deadline per sweep in seconds (0 disables)")

	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for alert state")
	fs.StringVar(&c.StateFile, "state-file", "", "path to a JSON alert-state file (alternative to database-url; neither = in-memory)")

	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the optional breach digest (empty disables)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model for the breach digest")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.APIToken == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.SlackBotToken == "" {
		errs = append(errs, errors.New("SLACK_BOT_TOKEN is required"))
	}
	if c.AlertChannelID == "" {
		errs = append(errs, errors.New("ALERT_CHANNEL is required"))
	}
	if len(c.ChannelList()) == 0 {
		errs = append(errs, errors.New("CHANNELS is required"))
	}
	if len(c.ExternalRoleList()) == 0 {
		errs = append(errs, errors.New("EXTERNAL_ROLES is required"))
	}
	if len(c.InternalRoleList()) == 0 {
		errs = append(errs, errors.New("INTERNAL_ROLES is required"))
	}

	if c.LookbackHours <= 0 || c.LookbackHours > 168 {
		errs = append(errs, fmt.Errorf("invalid LOOKBACK_HOURS %d (must be 1..168)", c.LookbackHours))
	}
	if c.PageSize <= 0 || c.PageSize > 200 {
		errs = append(errs, fmt.Errorf("invalid PAGE_SIZE %d (must be 1..200)", c.PageSize))
	}

	if c.WaitMinutes <= 0 {
		errs = append(errs, fmt.Errorf("invalid WAIT_MINUTES %d (must be positive)", c.WaitMinutes))
	}
	if c.CooldownMinutes <= 0 {
		errs = append(errs, fmt.Errorf("invalid COOLDOWN_MINUTES %d (must be positive)", c.CooldownMinutes))
	}

	// Quiet hours are all-or-nothing
	if (c.QuietHoursStart == "") != (c.QuietHoursEnd == "") {
		errs = append(errs, errors.New("QUIET_HOURS_START and QUIET_HOURS_END must be set together"))
	}
	if c.QuietHoursStart != "" {
		for _, v := range []string{c.QuietHoursStart, c.QuietHoursEnd} {
			if _, err := time.Parse("15:04", v); err != nil {
				errs = append(errs, fmt.Errorf("invalid quiet hours bound %q (must be HH:MM)", v))
			}
		}
		if _, err := time.LoadLocation(c.QuietHoursZone); err != nil {
			errs = append(errs, fmt.Errorf("invalid QUIET_HOURS_ZONE %q: %w", c.QuietHoursZone, err))
		}
		if c.UrgencyFloorHours <= 0 {
			errs = append(errs, fmt.Errorf("invalid URGENCY_FLOOR_HOURS %d (must be positive with quiet hours)", c.UrgencyFloorHours))
		}
	}

	if c.BatchSize <= 0 || c.BatchSize > 50 {
		errs = append(errs, fmt.Errorf("invalid BATCH_SIZE %d (must be 1..50)", c.BatchSize))
	}
	if c.BatchSpacingSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid BATCH_SPACING_SECONDS %d (must be >= 0)", c.BatchSpacingSeconds))
	}

	if c.SweepSchedule == "" {
		errs = append(errs, errors.New("SWEEP_SCHEDULE is required"))
	}
	if c.RunDeadlineSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid RUN_DEADLINE_SECONDS %d (must be >= 0)", c.RunDeadlineSeconds))
	}

	if c.DatabaseURL != "" && c.StateFile != "" {
		errs = append(errs, errors.New("DATABASE_URL and STATE_FILE are mutually exclusive"))
	}

	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ChannelList returns the monitored channel IDs.
func (c *Config) ChannelList() []string { return splitCSV(c.Channels) }

// ExternalRoleList returns the configured client-facing role identifiers.
func (c *Config) ExternalRoleList() []string { return splitCSV(c.ExternalRoles) }

// InternalRoleList returns the configured staff role identifiers.
func (c *Config) InternalRoleList() []string { return splitCSV(c.InternalRoles) }

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
