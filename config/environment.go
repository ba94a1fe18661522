package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
)

var environmentAliases = map[string]string{
	"dev":         EnvironmentDevelopment,
	"prod":        EnvironmentProduction,
	"producation": EnvironmentProduction,
	"stag":        EnvironmentStaging,
	"stagging":    EnvironmentStaging,
}

// AppEnvironment is APP_ENV normalized through the alias table, development
// when unset.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveEnvSpecificPath only replaces the default path; an explicit
// -config always wins.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}
	if envPath, ok := envPaths[AppEnvironment()]; ok && path == defaultPath {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	return path
}

// IsProductionLike reports whether env should fail fast on incomplete
// configuration.
func IsProductionLike(env string) bool {
	return env == EnvironmentProduction || env == EnvironmentStaging
}
