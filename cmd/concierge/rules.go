// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/selaras-ai/concierge/pkg/ux"
	"github.com/selaras-ai/concierge/services/assistant/calibration"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the calibration rule table",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a rules file without loading it into the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesValidate(args[0])
	},
}

var rulesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Tell the server to reload its rules file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesRefresh()
	},
}

var rulesStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's loaded rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRulesStatus()
	},
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesRefreshCmd)
	rulesCmd.AddCommand(rulesStatusCmd)
}

// runRulesValidate parses and compiles the file locally with the same
// code the server uses, so a pass here means refresh will succeed.
func runRulesValidate(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	spec, err := calibration.ParseSpec(data)
	if err != nil {
		ux.Error(fmt.Sprintf("parse failed: %v", err))
		return err
	}

	table, err := calibration.Compile(spec)
	if err != nil {
		ux.Error(fmt.Sprintf("compile failed: %v", err))
		return err
	}

	ux.Success(fmt.Sprintf("%s: %d rules, %d facts", path, table.RuleCount(), table.FactCount()))
	return nil
}

func runRulesRefresh() error {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Post(config.ServerURL+"/v1/admin/rules/refresh", "application/json", nil)
	if err != nil {
		return fmt.Errorf("concierge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp)
	}

	var body struct {
		Rules int `json:"rules"`
		Facts int `json:"facts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	ux.Success(fmt.Sprintf("reloaded: %d rules, %d facts", body.Rules, body.Facts))
	return nil
}

func runRulesStatus() error {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(config.ServerURL + "/v1/admin/rules")
	if err != nil {
		return fmt.Errorf("concierge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serviceError(resp)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	for key, value := range body {
		ux.Info(fmt.Sprintf("%s: %v", key, value))
	}
	return nil
}
