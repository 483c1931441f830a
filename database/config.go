/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "DATABASE"

// Config describes a Database: its connection URL and the raw engine and
// session option maps handed to Initialize.
type Config struct {
	URL                string  `mapstructure:"url" yaml:"url"`
	EngineOptions      Options `mapstructure:"engine_options" yaml:"engine_options,omitempty"`
	SessionOptions     Options `mapstructure:"session_options" yaml:"session_options,omitempty"`
	CreateAllOnStartup bool    `mapstructure:"create_all_on_startup" yaml:"create_all_on_startup"`
}

// LoadConfig reads path (YAML, JSON or TOML, by extension) and applies
// DATABASE_* environment overrides. An empty path reads the environment only.
//
//	DATABASE_URL                    url
//	DATABASE_CREATE_ALL_ON_STARTUP  create_all_on_startup
//	DATABASE_ECHO                   engine_options.echo
//	DATABASE_AUTOCOMMIT             session_options.autocommit
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("url", EnvPrefix+"_URL")
	_ = v.BindEnv("create_all_on_startup", EnvPrefix+"_CREATE_ALL_ON_STARTUP")
	_ = v.BindEnv("engine_options.echo", EnvPrefix+"_ECHO")
	_ = v.BindEnv("session_options.autocommit", EnvPrefix+"_AUTOCOMMIT")
}

// SaveConfig writes c as YAML to path, creating directories as needed.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders c as YAML with the URL password masked.
func (c *Config) String() string {
	masked := *c
	if u, err := ParseURL(c.URL); err == nil {
		masked.URL = u.String()
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("<invalid config: %v>", err)
	}
	return string(data)
}
