// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/selaras-ai/concierge/pkg/ux"
)

var config Config

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Selaras concierge: grounded Q&A for Indonesian business services",
	Long: `Concierge answers client questions about company formation, visas,
legal, and tax services. Answers are grounded in the firm's knowledge
base; prices and deadlines are calibrated against the curated fact
table, and the assistant abstains rather than guess.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		ux.InitPersonality()
		config = LoadConfig()
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(rulesCmd)
}
