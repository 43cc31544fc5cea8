package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ClickHouseConfig holds the connection settings for the analytical store.
type ClickHouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// SupersetConfig holds the connection settings for the Superset dashboard service.
// InternalServiceURL is used for server-to-server calls (guest token minting);
// ServiceURL is the browser-facing address embedded in dashboard contexts.
type SupersetConfig struct {
	ServiceURL         string `json:"service_url"`
	InternalServiceURL string `json:"internal_service_url"`
	Username           string `json:"username"`
	Password           string `json:"password"`
}

// Dashboard describes one embeddable Superset dashboard.
type Dashboard struct {
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	UUID              string `json:"uuid"`
	AllowTranslations bool   `json:"allow_translations"`
}

// ModelBinding maps a logical model name to a concrete registered model.
type ModelBinding struct {
	Module string `json:"module"`
	Model  string `json:"model"`
}

// Config is the full configuration surface for the plugin.
type Config struct {
	ClickHouse         ClickHouseConfig
	Superset           SupersetConfig
	Dashboards         []Dashboard
	ModelConfig        map[string]ModelBinding
	ExtraFiltersFormat []string
	DashboardLocales   []string

	DatabaseDSN     string
	NatsURL         string
	ServicePort     string
	ContentStoreURL string

	// Cron expression for the periodic full dump. Empty disables scheduling.
	DumpSchedule string

	// CustomCoursesEnabled gates CCX dumping, mirroring the host feature flag.
	CustomCoursesEnabled bool
}

// ModelsModule is the module identifier the default model bindings point at.
const ModelsModule = "github.com/openedx/platform-plugin-aspects/internal/models"

// DefaultFiltersFormat is the base set of row-level-security filter templates
// applied to every Superset guest token.
var DefaultFiltersFormat = []string{
	"org = '{course_id.org}'",
	"course_key = '{course_id}'",
}

// defaultModelConfig binds every logical model name the sinks use to the
// models registered at startup. Deployments can override or disable entries
// via ASPECTS_MODEL_CONFIG.
func defaultModelConfig() map[string]ModelBinding {
	names := []string{
		"auth_user",
		"user_profile",
		"external_id",
		"course_enrollment",
		"course_overviews",
		"custom_course_edx",
		"taxonomy",
		"tag",
		"object_tag",
	}
	bindings := make(map[string]ModelBinding, len(names))
	models := map[string]string{
		"auth_user":         "User",
		"user_profile":      "UserProfile",
		"external_id":       "ExternalID",
		"course_enrollment": "CourseEnrollment",
		"course_overviews":  "CourseOverview",
		"custom_course_edx": "CustomCourse",
		"taxonomy":          "Taxonomy",
		"tag":               "Tag",
		"object_tag":        "ObjectTag",
	}
	for _, name := range names {
		bindings[name] = ModelBinding{Module: ModelsModule, Model: models[name]}
	}
	return bindings
}

// Load reads the full configuration from the environment. Call godotenv.Load
// beforehand if a .env file should be honored.
func Load() (*Config, error) {
	timeoutSecs, err := getEnvInt("CLICKHOUSE_TIMEOUT_SECS", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ClickHouse: ClickHouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "event_sink"),
			Timeout:  time.Duration(timeoutSecs) * time.Second,
		},
		Superset: SupersetConfig{
			ServiceURL:         getEnv("SUPERSET_SERVICE_URL", "http://localhost:8088"),
			InternalServiceURL: getEnv("SUPERSET_INTERNAL_SERVICE_URL", ""),
			Username:           getEnv("SUPERSET_USERNAME", ""),
			Password:           getEnv("SUPERSET_PASSWORD", ""),
		},
		ModelConfig:          defaultModelConfig(),
		DatabaseDSN:          getEnv("DATABASE_DSN", "host=localhost user=postgres dbname=edxapp port=5432 sslmode=disable TimeZone=UTC"),
		NatsURL:              getEnv("NATS_URL", "nats://localhost:4222"),
		ContentStoreURL:      getEnv("CONTENT_STORE_URL", "http://localhost:8010"),
		ServicePort:          getEnv("ASPECTS_SERVICE_PORT", "8100"),
		DumpSchedule:         getEnv("ASPECTS_DUMP_SCHEDULE", ""),
		CustomCoursesEnabled: getEnv("FEATURES_CUSTOM_COURSES_EDX", "false") == "true",
	}

	if err := decodeJSONEnv("ASPECTS_INSTRUCTOR_DASHBOARDS", &cfg.Dashboards); err != nil {
		return nil, err
	}
	if err := decodeJSONEnv("ASPECTS_MODEL_CONFIG", &cfg.ModelConfig); err != nil {
		return nil, err
	}
	if err := decodeJSONEnv("SUPERSET_EXTRA_FILTERS_FORMAT", &cfg.ExtraFiltersFormat); err != nil {
		return nil, err
	}
	if err := decodeJSONEnv("SUPERSET_DASHBOARD_LOCALES", &cfg.DashboardLocales); err != nil {
		return nil, err
	}
	if cfg.DashboardLocales == nil {
		cfg.DashboardLocales = []string{"en"}
	}

	return cfg, nil
}

// Filters returns the complete filter template list: defaults plus any
// deployment-specific extras.
func (c *Config) Filters() []string {
	filters := make([]string, 0, len(DefaultFiltersFormat)+len(c.ExtraFiltersFormat))
	filters = append(filters, DefaultFiltersFormat...)
	filters = append(filters, c.ExtraFiltersFormat...)
	return filters
}

// getEnv reads an environment variable with a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid integer in %s: %q", key, value)
	}
	return n, nil
}

// decodeJSONEnv parses a JSON-valued environment variable into target.
// An unset or empty variable leaves the target untouched.
func decodeJSONEnv(key string, target interface{}) error {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(value), target); err != nil {
		return fmt.Errorf("failed to parse %s as JSON: %w", key, err)
	}
	return nil
}
