// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/selaras-ai/concierge/pkg/ux"
)

var (
	ingestCollection string
	ingestSource     string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest uploads markdown or text files to the concierge service, where
they are chunked, embedded, and stored. Re-ingesting the same source
replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCollection, "collection", "general",
		"Target collection (pricing, legal, immigration, tax, directory, general)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "",
		"Source name override (defaults to the file name)")
}

type ingestRequest struct {
	Source     string `json:"source"`
	Collection string `json:"collection"`
	Content    string `json:"content"`
}

func runIngest(paths []string) error {
	client := &http.Client{Timeout: 5 * time.Minute}

	succeeded, skipped := 0, 0
	for _, path := range paths {
		source := ingestSource
		if source == "" || len(paths) > 1 {
			source = filepath.Base(path)
		}

		err := ux.WithSpinner(fmt.Sprintf("ingesting %s", source), func() error {
			return ingestFile(client, path, source)
		})
		if err != nil {
			skipped++
			continue
		}
		succeeded++
	}

	ux.Summary(succeeded, skipped, len(paths))
	if skipped > 0 {
		return fmt.Errorf("%d of %d files failed", skipped, len(paths))
	}
	return nil
}

func ingestFile(client *http.Client, path, source string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ingestRequest{
		Source:     source,
		Collection: ingestCollection,
		Content:    string(content),
	})
	if err != nil {
		return err
	}

	resp, err := client.Post(config.ServerURL+"/v1/knowledge/documents",
		"application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("concierge service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return serviceError(resp)
	}
	return nil
}
