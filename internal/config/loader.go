package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigName is the configuration file name without extension.
const DefaultConfigName = "warcrawl"

// EnvPrefix prefixes the environment variables read by warcrawl,
// e.g. WARCRAWL_BATCH_SIZE.
const EnvPrefix = "WARCRAWL"

// ErrConfigNotFound is returned when an explicitly named configuration file
// does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// NewViper returns a viper instance with every configuration key
// registered with its default and bound to its environment variable.
// Callers bind their flags before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewConfig())
	return v
}

// setDefaults registers each mapstructure key of cfg so that environment
// variables are seen by Unmarshal even when no file sets the key.
func setDefaults(v *viper.Viper, cfg *Config) {
	rv := reflect.ValueOf(cfg).Elem()
	rt := rv.Type()
	for i := range rt.NumField() {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		v.SetDefault(key, rv.Field(i).Interface())
	}
}

// Load reads the configuration file and merges it with the environment
// and any flags bound to v.
//
// When path is empty, warcrawl.yaml is searched in the current directory,
// the XDG config directory and the home directory; a missing file is not
// an error. When path is set, the file must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(XDGConfigDir())
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	cfg := NewConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.ConfigFilePath = v.ConfigFileUsed()

	return cfg, nil
}
