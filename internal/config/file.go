package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileLookup reads a flat YAML, TOML or JSON file of SQLTR_* keys.
func FileLookup(path string) (LookupFunc, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		name := strings.ToLower(key)
		if !v.IsSet(name) {
			return "", false
		}
		return v.GetString(name), true
	}, nil
}

// ChainLookup returns the first hit across lookups, in order.
func ChainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}
