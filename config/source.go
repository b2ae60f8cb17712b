package config

// Source indicates where a configuration value came from.
type Source string

const (
	// SourceDefault indicates the value is a built-in default.
	SourceDefault Source = "default"

	// SourceGlobal indicates the value came from the global config file
	// under ~/.config/factory/.
	SourceGlobal Source = "global"

	// SourceLocal indicates the value came from the repo-local config
	// file at the git root.
	SourceLocal Source = "local"

	// SourceEnv indicates the value came from a FACTORY_* environment
	// variable.
	SourceEnv Source = "env"
)
