// internal/workers/deployment/prepare-specs/config.go
package preparespecs

import (
	appconfig "pipeline-workers/internal/common/config"
)

type Config struct {
	TemplateDir     string
	AppSpecFile     string
	TaskDefFile     string
	ValidateAppSpec bool
	ARNParameter    string
	AppVersion      string
}

func LoadConfig(cfg *appconfig.Config) *Config {
	return &Config{
		TemplateDir:     cfg.Templates.Dir,
		AppSpecFile:     cfg.Templates.AppSpecFile,
		TaskDefFile:     cfg.Templates.TaskDefFile,
		ValidateAppSpec: cfg.Templates.ValidateAppSpec,
		ARNParameter:    cfg.Templates.ARNParameter,
		AppVersion:      cfg.App.Version,
	}
}

func defaultConfig() *Config {
	return &Config{
		TemplateDir:     ".",
		AppSpecFile:     "appspec.yaml",
		TaskDefFile:     "taskdef.json",
		ValidateAppSpec: true,
		ARNParameter:    "taskDefinitionArn",
		AppVersion:      "dev",
	}
}
