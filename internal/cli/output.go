// Package cli provides input parsing and output formatting for the matome CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is the same JSON the server returns.
	OutputJSON OutputFormat = "json"
)

// questionWidth is the maximum number of runes shown per question in text output.
const questionWidth = 100

// ParseOutputFormat validates a -output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteClusters writes a clustering result to w in the given format.
func WriteClusters(w io.Writer, clusters cluster.Result, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models.ClusterResponse{Clusters: clusters})
	default:
		writeClustersText(w, clusters)
		return nil
	}
}

func writeClustersText(w io.Writer, clusters cluster.Result) {
	fmt.Fprintf(w, "\n%d questions in %d clusters\n\n", clusters.Size(), len(clusters))
	for _, seed := range clusters.Seeds() {
		members := clusters[fmt.Sprint(seed)]
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Cluster %d (%d)\n", seed, len(members))
		for i, m := range members {
			marker := " "
			if i == 0 {
				marker = "*"
			}
			fmt.Fprintf(w, " %s %-12s %s\n", marker, m.ID, utils.Truncate(m.Question, questionWidth))
		}
	}
	fmt.Fprintln(w)
}

// WriteStatus writes the server status to w in the given format.
func WriteStatus(w io.Writer, status *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "state:              %s\n", status.Provider.State)
	if status.Provider.Model != "" {
		fmt.Fprintf(w, "model:              %s\n", status.Provider.Model)
		fmt.Fprintf(w, "dimensions:         %d\n", status.Provider.Dimensions)
	}
	if status.Provider.Error != "" {
		fmt.Fprintf(w, "last_error:         %s\n", status.Provider.Error)
	}
	fmt.Fprintf(w, "threshold:          %g\n", status.Threshold)
	fmt.Fprintf(w, "timeout:            %s\n", status.Timeout)
	if status.Uptime != "" {
		fmt.Fprintf(w, "uptime:             %s\n", status.Uptime)
	}
	if status.Cache != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# embedding cache")
		fmt.Fprintf(w, "path:               %s\n", status.Cache.Path)
		fmt.Fprintf(w, "embeddings:         %d\n", status.Cache.Embeddings)
		fmt.Fprintf(w, "size_bytes:         %d\n", status.Cache.SizeBytes)
	}
	return nil
}

// ReadClusterRequest decodes and validates a {"questionsWithIds": ...} document.
// A bare id -> text object is accepted as well.
func ReadClusterRequest(r io.Reader) (*models.ClusterRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	req := &models.ClusterRequest{}
	if q, ok := raw["questionsWithIds"]; ok {
		if err := json.Unmarshal(q, &req.QuestionsWithIDs); err != nil {
			return nil, fmt.Errorf("invalid questionsWithIds: %w", err)
		}
	} else {
		req.QuestionsWithIDs = make(map[string]string, len(raw))
		for id, v := range raw {
			var text string
			if err := json.Unmarshal(v, &text); err != nil {
				return nil, fmt.Errorf("question %q is not a string", id)
			}
			req.QuestionsWithIDs[id] = text
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// ArgsReorder moves flags that appear after positional arguments to the front so
// that flag.Parse sees them ("matome cluster q.json -output json").
func ArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' && a != "-" {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}
