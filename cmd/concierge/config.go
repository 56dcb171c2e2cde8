// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds CLI and server settings loaded from config.yaml.
//
// Every field has an environment override so containerized deployments
// can skip the file entirely.
type Config struct {
	// ServerURL is the concierge service base URL for client commands.
	ServerURL string `yaml:"server_url"`

	// Port the serve command listens on.
	Port string `yaml:"port"`

	// RulesPath is the calibration rules file watched by the server.
	RulesPath string `yaml:"rules_path"`

	// AuditPath is the directory for the badger audit store.
	AuditPath string `yaml:"audit_path"`
}

// LoadConfig reads config.yaml when present and applies environment
// overrides and defaults. A missing file is not an error; environment
// variables alone are a complete configuration.
func LoadConfig() Config {
	var cfg Config

	path := os.Getenv("CONCIERGE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}

	if yamlFile, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", path, err)
		}
	}

	applyEnv(&cfg.ServerURL, "CONCIERGE_SERVER_URL")
	applyEnv(&cfg.Port, "CONCIERGE_PORT")
	applyEnv(&cfg.RulesPath, "CONCIERGE_RULES_PATH")
	applyEnv(&cfg.AuditPath, "CONCIERGE_AUDIT_PATH")

	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:12410"
	}
	if cfg.Port == "" {
		cfg.Port = "12410"
	}
	if cfg.RulesPath == "" {
		cfg.RulesPath = "configs/rules.yaml"
	}
	if cfg.AuditPath == "" {
		cfg.AuditPath = "data/audit"
	}
	return cfg
}

func applyEnv(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}
