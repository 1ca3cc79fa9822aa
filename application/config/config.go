// Package config resolves launcher settings from flags, environment,
// an optional config file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	launcherErrors "github.com/reglet-dev/reglet-launcher/domain/errors"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Setting keys, with their flag and environment names.
const (
	KeyModules  = "modules"
	FlagModules = "modules"
	EnvModules  = "MODULES"

	KeyModuleHome  = "module.home"
	FlagModuleHome = "module-home"
	EnvModuleHome  = "MODULE_HOME"

	KeyBasePort  = "base.port"
	FlagBasePort = "base-port"
	EnvBasePort  = "BASE_PORT"

	KeyLogLevel  = "log.level"
	FlagLogLevel = "log-level"
	EnvLogLevel  = "LOG_LEVEL"

	KeyLogFormat  = "log.format"
	FlagLogFormat = "log-format"
	EnvLogFormat  = "LOG_FORMAT"

	KeyMetricsAddr  = "metrics.addr"
	FlagMetricsAddr = "metrics-addr"
	EnvMetricsAddr  = "METRICS_ADDR"

	KeyCacheDir  = "cache.dir"
	FlagCacheDir = "cache-dir"
	EnvCacheDir  = "CACHE_DIR"
)

// Defaults.
const (
	DefaultModuleHome = "/opt/reglet/modules"
	DefaultBasePort   = 8080
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// Settings are the resolved launcher settings.
type Settings struct {
	ModuleHome  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	CacheDir    string
	Modules     []string
	BasePort    int
}

type binding struct {
	key, flag, env string
}

var bindings = []binding{
	{KeyModules, FlagModules, EnvModules},
	{KeyModuleHome, FlagModuleHome, EnvModuleHome},
	{KeyBasePort, FlagBasePort, EnvBasePort},
	{KeyLogLevel, FlagLogLevel, EnvLogLevel},
	{KeyLogFormat, FlagLogFormat, EnvLogFormat},
	{KeyMetricsAddr, FlagMetricsAddr, EnvMetricsAddr},
	{KeyCacheDir, FlagCacheDir, EnvCacheDir},
}

// RegisterFlags defines the launcher flags on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(FlagModules, "", "comma-separated module names to launch")
	flags.String(FlagModuleHome, DefaultModuleHome, "directory holding module archives")
	flags.Int(FlagBasePort, DefaultBasePort, "first port handed to a module")
	flags.String(FlagLogLevel, DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String(FlagLogFormat, DefaultLogFormat, "log format (text, json, logfmt)")
	flags.String(FlagMetricsAddr, "", "serve Prometheus metrics on this address (disabled when empty)")
	flags.String(FlagCacheDir, "", "directory for the on-disk compilation cache (in-memory when empty)")
}

// New returns a viper instance bound to flags and the environment.
func New(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(KeyModuleHome, DefaultModuleHome)
	v.SetDefault(KeyBasePort, DefaultBasePort)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", b.env, err)
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", b.flag, err)
			}
		}
	}
	return v, nil
}

// ReadFile merges a config file (YAML, TOML or JSON by extension) into v.
// An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load resolves Settings from v. A missing or empty module list is a
// ConfigurationMissingError.
func Load(v *viper.Viper) (*Settings, error) {
	modules, err := moduleList(v.Get(KeyModules))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyModules, err)
	}
	if len(modules) == 0 {
		return nil, &launcherErrors.ConfigurationMissingError{Setting: KeyModules, EnvVar: EnvModules}
	}

	basePort, err := cast.ToIntE(v.Get(KeyBasePort))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyBasePort, err)
	}
	if basePort < 1 || basePort > 65535 {
		return nil, fmt.Errorf("%s: %d is not a valid port", KeyBasePort, basePort)
	}

	return &Settings{
		Modules:     modules,
		ModuleHome:  strings.TrimSpace(v.GetString(KeyModuleHome)),
		BasePort:    basePort,
		LogLevel:    v.GetString(KeyLogLevel),
		LogFormat:   v.GetString(KeyLogFormat),
		MetricsAddr: v.GetString(KeyMetricsAddr),
		CacheDir:    v.GetString(KeyCacheDir),
	}, nil
}

// moduleList accepts a comma-separated string (flag, environment) or a
// list (config file).
func moduleList(raw any) ([]string, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return Tokenize(val), nil
	default:
		items, err := cast.ToStringSliceE(val)
		if err != nil {
			return nil, errors.New("must be a comma-separated string or a list of names")
		}
		return Tokenize(strings.Join(items, ",")), nil
	}
}

// Tokenize splits a comma-separated module list, trimming whitespace and
// dropping empty entries.
func Tokenize(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
