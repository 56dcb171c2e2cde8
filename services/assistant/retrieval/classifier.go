// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"log/slog"
	"strings"

	"github.com/selaras-ai/concierge/services/assistant/datatypes"
)

// =============================================================================
// Collection Routing
// =============================================================================

// collectionKeywords maps each collection to the query terms that route to
// it. Both Indonesian and English terms appear because users mix languages
// freely.
var collectionKeywords = map[string][]string{
	datatypes.CollectionPricing: {
		"price", "pricing", "cost", "fee", "fees", "how much", "package",
		"harga", "biaya", "tarif", "berapa", "paket", "rp",
	},
	datatypes.CollectionLegal: {
		"legal", "law", "regulation", "contract", "agreement", "notary",
		"license", "permit", "compliance",
		"hukum", "peraturan", "kontrak", "perjanjian", "notaris", "izin",
		"akta", "pt ", "pt.", "pma", "cv ",
	},
	datatypes.CollectionImmigration: {
		"visa", "kitas", "kitap", "immigration", "passport", "sponsor",
		"work permit", "stay permit",
		"imigrasi", "paspor", "rptka", "imta", "visa kerja",
	},
	datatypes.CollectionTax: {
		"tax", "vat", "withholding", "npwp", "invoice",
		"pajak", "ppn", "pph", "faktur", "spt", "lapor pajak",
	},
	datatypes.CollectionDirectory: {
		"who", "contact", "email", "phone", "office", "address", "team",
		"siapa", "kontak", "telepon", "kantor", "alamat",
	},
}

// Route picks the collections a query should search.
//
// # Description
//
// An explicit hint wins outright when it names a known collection. Otherwise
// a keyword scan over the lowercased query selects every matching collection.
// Queries matching nothing route to the general collection.
//
// # Inputs
//
//   - query: The user query text.
//   - hint: Optional explicit collection name from request options.
//
// # Outputs
//
//   - []string: One or more collection names, never empty.
func Route(query, hint string) []string {
	if hint != "" {
		if datatypes.IsKnownCollection(hint) {
			return []string{hint}
		}
		slog.Warn("Ignoring unknown collection hint", "hint", hint)
	}

	lowered := strings.ToLower(query)
	var matched []string
	for _, collection := range datatypes.KnownCollections() {
		for _, keyword := range collectionKeywords[collection] {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, collection)
				break
			}
		}
	}

	if len(matched) == 0 {
		return []string{datatypes.CollectionGeneral}
	}
	return matched
}

// =============================================================================
// Domain Policy
// =============================================================================

// DomainPolicy decides which collections demand verified evidence.
//
// # Description
//
// Regulated domains (pricing, legal, immigration, tax) must never be
// answered with specifics unless evidence or a trusted tool backs the
// answer. The general and directory domains tolerate unverified answers,
// which the scorer floors at a hedged confidence instead of abstaining.
type DomainPolicy struct {
	unverified map[string]bool
}

// DefaultDomainPolicy marks general and directory as not requiring
// verification.
func DefaultDomainPolicy() DomainPolicy {
	return DomainPolicy{
		unverified: map[string]bool{
			datatypes.CollectionGeneral:   true,
			datatypes.CollectionDirectory: true,
		},
	}
}

// RequiresVerification reports whether a collection demands evidence before
// specifics may appear in an answer.
func (p DomainPolicy) RequiresVerification(collection string) bool {
	return !p.unverified[collection]
}

// RequiresVerificationAny reports whether any routed collection demands
// verification. A query touching both general and pricing is treated as
// regulated.
func (p DomainPolicy) RequiresVerificationAny(collections []string) bool {
	for _, c := range collections {
		if p.RequiresVerification(c) {
			return true
		}
	}
	return false
}
