// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "agora.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	LedgerEndpoint    string `yaml:"ledgerEndpoint"    envconfig:"AGORA_LEDGER_ENDPOINT"`
	Account           string `yaml:"account"           envconfig:"AGORA_ACCOUNT"`
	BindAddr          string `yaml:"bindAddr"                                            split_words:"true"`
	SyncInterval      string `yaml:"syncInterval"                                        split_words:"true"`
	SettlementTimeout string `yaml:"settlementTimeout"                                   split_words:"true"`
	ShutdownTimeout   string `yaml:"shutdownTimeout"                                     split_words:"true"`
	MetricsPort       uint   `yaml:"metricsPort"                                         split_words:"true"`
}

var globalConfig = &Config{
	LedgerEndpoint:    "http://localhost:8545",
	BindAddr:          "0.0.0.0",
	MetricsPort:       12980,
	SyncInterval:      "15s",
	SettlementTimeout: "60s",
	ShutdownTimeout:   "30s",
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.agora/agora.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".agora", "agora.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/agora/agora.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/agora/agora.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("agora", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}
