// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads config.yaml (optional) plus the environment-specific overlay and
// applies environment variable overrides, e.g. TEMPLATES_DIR or AWS_REGION.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	if root := os.Getenv("LAMBDA_TASK_ROOT"); root != "" {
		v.AddConfigPath(root)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // the overlay is optional

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "prepare-specs")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "production")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.s3_endpoint", "")
	v.SetDefault("aws.s3_use_path_style", false)
	v.SetDefault("aws.codepipeline_endpoint", "")

	v.SetDefault("templates.dir", ".")
	v.SetDefault("templates.appspec_file", "appspec.yaml")
	v.SetDefault("templates.taskdef_file", "taskdef.json")
	v.SetDefault("templates.validate_appspec", true)
	v.SetDefault("templates.arn_parameter", "taskDefinitionArn")

	v.SetDefault("artifacts.content_type", "zip")
	v.SetDefault("artifacts.kms_key_id", "")
	v.SetDefault("artifacts.temp_dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("notifications.sns.enabled", false)
	v.SetDefault("notifications.sns.topic_arn", "")
	v.SetDefault("notifications.ses.enabled", false)
	v.SetDefault("notifications.ses.from_email", "")
	v.SetDefault("notifications.ses.to_emails", []string{})
	v.SetDefault("notifications.ses.only_on_failure", true)

	v.SetDefault("observability.service_name", "")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_endpoint", "")
	v.SetDefault("observability.pushgateway_url", "")
}

// loadEnvFile loads a .env file when one exists. Lambda deployments rely on
// real environment variables, so a missing file is not an error.
func loadEnvFile() bool {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return true
			}
		}
	}
	return false
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// applyDefaults fills values derived from other settings or from the runtime.
func applyDefaults(cfg *Config) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Artifacts.TempDir == "" {
		cfg.Artifacts.TempDir = os.TempDir()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Templates.AppSpecFile == "" {
		return fmt.Errorf("templates.appspec_file is required")
	}
	if cfg.Templates.TaskDefFile == "" {
		return fmt.Errorf("templates.taskdef_file is required")
	}
	if cfg.Templates.AppSpecFile == cfg.Templates.TaskDefFile {
		return fmt.Errorf("templates.appspec_file and templates.taskdef_file must differ")
	}
	if cfg.Templates.ARNParameter == "" {
		return fmt.Errorf("templates.arn_parameter is required")
	}
	if cfg.Artifacts.ContentType == "" {
		return fmt.Errorf("artifacts.content_type is required")
	}

	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	if cfg.Notifications.SES.Enabled {
		if cfg.Notifications.SES.FromEmail == "" {
			return fmt.Errorf("notifications.ses.from_email is required when ses is enabled")
		}
		if len(cfg.Notifications.SES.ToEmails) == 0 {
			return fmt.Errorf("notifications.ses.to_emails is required when ses is enabled")
		}
	}

	return nil
}
