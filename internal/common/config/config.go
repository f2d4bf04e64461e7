// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Templates     TemplateConfig      `mapstructure:"templates"`
	Artifacts     ArtifactConfig      `mapstructure:"artifacts"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// AWSConfig holds client settings. Region is normally injected by Lambda
// through AWS_REGION; the endpoints are only set for local stacks.
type AWSConfig struct {
	Region               string `mapstructure:"region"`
	S3Endpoint           string `mapstructure:"s3_endpoint"`
	S3UsePathStyle       bool   `mapstructure:"s3_use_path_style"`
	CodePipelineEndpoint string `mapstructure:"codepipeline_endpoint"`
}

// TemplateConfig locates the two deployment templates bundled with the function.
type TemplateConfig struct {
	Dir             string `mapstructure:"dir"`
	AppSpecFile     string `mapstructure:"appspec_file"`
	TaskDefFile     string `mapstructure:"taskdef_file"`
	ValidateAppSpec bool   `mapstructure:"validate_appspec"`
	ARNParameter    string `mapstructure:"arn_parameter"`
}

// ArtifactConfig controls how the output archive is written.
type ArtifactConfig struct {
	ContentType string `mapstructure:"content_type"`
	KMSKeyID    string `mapstructure:"kms_key_id"`
	TempDir     string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotificationConfig holds the optional job outcome channels.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	SES struct {
		Enabled       bool     `mapstructure:"enabled"`
		FromEmail     string   `mapstructure:"from_email"`
		ToEmails      []string `mapstructure:"to_emails"`
		OnlyOnFailure bool     `mapstructure:"only_on_failure"`
	} `mapstructure:"ses"`
}

// ObservabilityConfig holds metrics and tracing settings. Metrics are pushed
// to PushgatewayURL at the end of each invocation; empty disables the push.
type ObservabilityConfig struct {
	ServiceName     string `mapstructure:"service_name"`
	MetricsEnabled  bool   `mapstructure:"metrics_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	PushgatewayURL  string `mapstructure:"pushgateway_url"`
}
