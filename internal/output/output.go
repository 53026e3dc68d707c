package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders batch results, templates and letter previews.
type Formatter interface {
	FormatBatch(result *core.BatchResult) (string, error)
	FormatTemplates(templates []core.Template) (string, error)
	FormatPreview(preview letter.PreviewResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatBatchList renders batch headers, one row per batch.
func FormatBatchList(format Format, results []core.BatchResult) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatMarkdown:
		return markdownBatchList(results), nil
	default:
		return tableBatchList(results), nil
	}
}

func summaryLine(result *core.BatchResult) string {
	line := fmt.Sprintf("%d succeeded, %d failed of %d", result.SucceededCount, result.FailedCount, result.Total)
	if pending := result.Total - result.Completed(); pending > 0 {
		line += fmt.Sprintf(", %d not processed", pending)
	}
	return line
}

// bureauSummary lists letters created per bureau in canonical bureau order.
func bureauSummary(result *core.BatchResult) string {
	counts := result.BureauCounts()
	parts := make([]string, 0, len(counts))
	for _, b := range core.Bureaus {
		if n := counts[b]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", b.DisplayName(), n))
		}
	}
	if len(parts) == 0 {
		return "no letters created"
	}
	return "Letters: " + strings.Join(parts, ", ")
}

func itemErrorLabel(item core.JobItemResult) string {
	switch {
	case item.Error != "" && item.ErrorCode != "":
		return item.ErrorCode + ": " + item.Error
	case item.Error != "":
		return item.Error
	case item.Duplicate:
		return "existing dispute reused"
	default:
		return ""
	}
}

func bureauList(bureaus []core.Bureau) string {
	names := make([]string, 0, len(bureaus))
	for _, b := range bureaus {
		names = append(names, b.DisplayName())
	}
	return strings.Join(names, ", ")
}

func finishedLabel(result core.BatchResult) string {
	if result.FinishedAt == nil {
		return "-"
	}
	return result.FinishedAt.Format("2006-01-02 15:04:05")
}
