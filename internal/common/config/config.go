// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Sweep         SweepConfig         `mapstructure:"sweep"`
	Delivery      DeliveryConfig      `mapstructure:"delivery"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Templates     TemplateConfig      `mapstructure:"templates"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// ElasticsearchConfig configures the optional event analytics index.
type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	// MaxRetries bounds transport retries on 429 and 5xx gateway responses.
	MaxRetries int `mapstructure:"max_retries"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// --- Domain Sections ---

// LedgerConfig holds command-layer settings.
type LedgerConfig struct {
	Timezone string `mapstructure:"timezone"`
	// DueDatePastLimitDays rejects due-date changes further in the past than this.
	DueDatePastLimitDays int `mapstructure:"due_date_past_limit_days"`
	// AuditRetries bounds reload-and-retry when folding audit events into a snapshot.
	AuditRetries int `mapstructure:"audit_retries"`
}

// SweepConfig holds settings for the daily time-driven sweep.
type SweepConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	RunAtHour     int  `mapstructure:"run_at_hour"`
	CheckInterval int  `mapstructure:"check_interval"` // milliseconds
	PreAlertDays  int  `mapstructure:"pre_alert_days"`
	HorizonMonths int  `mapstructure:"horizon_months"`
	LockTTL       int  `mapstructure:"lock_ttl"` // milliseconds
	// RetryBackoff is the first wait after a failed run; it doubles per
	// failure up to RetryBackoffMax and resets each day.
	RetryBackoff    int `mapstructure:"retry_backoff"`     // milliseconds
	RetryBackoffMax int `mapstructure:"retry_backoff_max"` // milliseconds
}

// DeliveryConfig holds settings for the notification delivery loop.
type DeliveryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PollInterval int  `mapstructure:"poll_interval"` // milliseconds
	BatchSize    int  `mapstructure:"batch_size"`
	MaxAttempts  int  `mapstructure:"max_attempts"`
	BaseDelay    int  `mapstructure:"base_delay"`   // milliseconds
	SendTimeout  int  `mapstructure:"send_timeout"` // milliseconds
	ReclaimAfter int  `mapstructure:"reclaim_after"` // milliseconds
}

// NotificationConfig selects and configures the delivery channel adapter.
type NotificationConfig struct {
	Channel string `mapstructure:"channel"` // webhook, ses, sns

	Webhook struct {
		URL     string `mapstructure:"url"`
		Token   string `mapstructure:"token"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"webhook"`

	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			FromEmail string `mapstructure:"from_email"`
			Subject   string `mapstructure:"subject"`
		} `mapstructure:"ses"`
		SNS struct {
			SenderID string `mapstructure:"sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// TemplateConfig points at the alert message template registry.
type TemplateConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
}

// ObservabilityConfig holds metrics and tracing settings.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	MetricsAddress string `mapstructure:"metrics_address"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}
