// Package ingest implements the paper ingestion pipeline: render the leading
// pages of a PDF for a vision model, extract bibliographic metadata, repair
// incomplete fields through a bounded web-search loop, and store one
// synthetic summary document per paper in the vector store.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State field keys for the ingestion graph. Nodes read and write these keys
// on the shared graph state.
const (
	// KeyDocumentPath is the input: the path of the PDF to ingest.
	KeyDocumentPath = "document_path"
	// KeyPageImages holds the rendered page images (base64 PNG), cached in
	// state so retries never re-render.
	KeyPageImages = "page_images"
	// KeyMetadata holds the extracted (and progressively repaired) metadata.
	KeyMetadata = "extracted_metadata"
	// KeyMissingFields lists metadata fields still considered unusable.
	KeyMissingFields = "missing_fields"
	// KeyRetryCount counts completed web repair attempts.
	KeyRetryCount = "retry_count"
	// KeyStatus is the terminal outcome: "success" or "failed".
	KeyStatus = "status"
	// KeyErrorMessage carries the failure detail when KeyStatus is "failed".
	KeyErrorMessage = "error_message"
)

// Status values stored under KeyStatus.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Metadata is the bibliographic record extracted from a paper's leading pages.
type Metadata struct {
	// Title is the paper title.
	Title string `json:"title"`
	// Authors lists the author names in paper order.
	Authors []string `json:"authors"`
	// Year is the publication year, kept as a string because models return
	// it in assorted shapes.
	Year string `json:"year"`
	// Venue is the publication venue (conference or journal).
	Venue string `json:"venue"`
	// Abstract is the paper abstract.
	Abstract string `json:"abstract"`
	// Summary condenses the introduction and background sections.
	Summary string `json:"introduction_summary"`
}

// UnmarshalJSON accepts the year as either a JSON string or a number, since
// models emit both.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type alias Metadata
	aux := struct {
		*alias
		Year json.RawMessage `json:"year"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Year) > 0 && string(aux.Year) != "null" {
		var s string
		if err := json.Unmarshal(aux.Year, &s); err == nil {
			m.Year = s
		} else {
			var n int
			if err := json.Unmarshal(aux.Year, &n); err != nil {
				return fmt.Errorf("ingest: year is neither string nor number: %s", aux.Year)
			}
			m.Year = fmt.Sprintf("%d", n)
		}
	}
	return nil
}

// missingAfterExtraction reflects on freshly extracted metadata. A venue that
// names a preprint server is treated as absent: arXiv papers are usually
// published somewhere, and the real venue is what retrieval filters need.
func missingAfterExtraction(m *Metadata) []string {
	var missing []string
	if m.Year == "" {
		missing = append(missing, "year")
	}
	venue := strings.ToLower(m.Venue)
	if venue == "" || strings.Contains(venue, "arxiv") || strings.Contains(venue, "preprint") {
		missing = append(missing, "venue")
	}
	return missing
}

// missingAfterRepair re-checks metadata after a web repair pass. Only outright
// absence counts here: a repair that still names a preprint server is accepted
// rather than looping on an unanswerable question.
func missingAfterRepair(m *Metadata) []string {
	var missing []string
	if m.Year == "" {
		missing = append(missing, "year")
	}
	if m.Venue == "" {
		missing = append(missing, "venue")
	}
	return missing
}
