// Package cli provides output formatting for tarotvision commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tarotvision/tarotvision/internal/index"
)

// OutputFormat is the format for query result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// QueryResponse is the machine-readable query result envelope.
type QueryResponse struct {
	Deck    string        `json:"deck"`
	Query   string        `json:"query"`
	Matches []index.Match `json:"matches"`
}

// WriteMatches writes query results to w in the given format.
func WriteMatches(w io.Writer, response *QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeMatchesText(w, response)
		return nil
	}
}

func writeMatchesText(w io.Writer, response *QueryResponse) {
	fmt.Fprintf(w, "\n--- Search Results ---\n")
	if len(response.Matches) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	for _, m := range response.Matches {
		fmt.Fprintf(w, "Rank %d: %s (Score: %.4f)\n", m.Rank, m.CardName, m.Score)
		if m.Filename != "" {
			fmt.Fprintf(w, "        File: %s\n", m.Filename)
		}
	}
}
