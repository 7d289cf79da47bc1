package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paperflow/paperflow-go/internal/graph"
)

// stripFences removes markdown code fences from a model response. Models
// routinely wrap JSON in ```json blocks despite instructions not to.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// parseMetadata decodes a model response into a Metadata record, tolerating
// fenced output.
func parseMetadata(content string) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(stripFences(content)), &m); err != nil {
		return nil, fmt.Errorf("ingest: parse metadata JSON: %w", err)
	}
	return &m, nil
}

// parseRepair decodes a repair response into the corrected field map. An
// empty object means the web had nothing useful.
func parseRepair(content string) (map[string]any, error) {
	var fix map[string]any
	if err := json.Unmarshal([]byte(stripFences(content)), &fix); err != nil {
		return nil, fmt.Errorf("ingest: parse repair JSON: %w", err)
	}
	return fix, nil
}

// metadataFromState recovers the Metadata record from graph state. Within a
// run the value is a *Metadata; after a checkpoint reload it is the generic
// map produced by JSON decoding, so both shapes are accepted.
func metadataFromState(s graph.State) *Metadata {
	switch v := s[KeyMetadata].(type) {
	case *Metadata:
		return v
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var m Metadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return &m
	}
	return nil
}

// applyRepair merges the corrected fields a repair pass returned into the
// metadata record. Only fields present in the fix are touched.
func applyRepair(m *Metadata, fix map[string]any) {
	for k, v := range fix {
		switch k {
		case "title":
			if s, ok := v.(string); ok && s != "" {
				m.Title = s
			}
		case "year":
			switch y := v.(type) {
			case string:
				if y != "" {
					m.Year = y
				}
			case float64:
				m.Year = fmt.Sprintf("%d", int(y))
			}
		case "venue":
			if s, ok := v.(string); ok && s != "" {
				m.Venue = s
			}
		case "authors":
			if list, ok := v.([]any); ok {
				authors := make([]string, 0, len(list))
				for _, e := range list {
					if s, ok := e.(string); ok {
						authors = append(authors, s)
					}
				}
				if len(authors) > 0 {
					m.Authors = authors
				}
			}
		}
	}
}
