package output

import (
	"fmt"
	"strings"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatBatch renders a batch result as Markdown.
func (f *MarkdownFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Batch %s\n\n", escapeMarkdownCell(result.BatchID)))
	sb.WriteString(fmt.Sprintf("**Status**: %s  \n**Template**: %s\n\n", result.Status, escapeMarkdownCell(result.TemplateID)))
	sb.WriteString("| Client | Status | Bureaus | Disputes | Attempts | Notes |\n")
	sb.WriteString("|--------|--------|---------|----------|----------|-------|\n")

	for _, item := range result.Items {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s |\n",
			escapeMarkdownCell(item.ClientID),
			item.Status,
			escapeMarkdownCell(bureauList(item.Bureaus)),
			len(item.DisputeIDs),
			item.Attempts,
			escapeMarkdownCell(itemErrorLabel(item)),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Summary**: %s  \n%s\n", summaryLine(result), bureauSummary(result)))
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatTemplates(templates []core.Template) (string, error) {
	var sb strings.Builder
	sb.WriteString("| ID | Name | Type | Bureau | Active |\n")
	sb.WriteString("|----|------|------|--------|--------|\n")
	for _, tpl := range templates {
		bureau := "all"
		if tpl.Bureau != "" {
			bureau = tpl.Bureau.DisplayName()
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %t |\n",
			escapeMarkdownCell(tpl.ID),
			escapeMarkdownCell(tpl.Name),
			tpl.Type,
			bureau,
			tpl.IsActive,
		))
	}
	return sb.String(), nil
}

func (f *MarkdownFormatter) FormatPreview(preview letter.PreviewResult) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### %s\n\n", preview.Letter.Subject))
	sb.WriteString("```text\n" + strings.TrimRight(preview.Letter.Body, "\n") + "\n```\n")
	if len(preview.Sampled) > 0 {
		sb.WriteString("\n_Sample values used for_: `" + strings.Join(preview.Sampled, "`, `") + "`\n")
	}
	if len(preview.Warnings) > 0 {
		sb.WriteString("\n**Warnings**\n\n")
		for _, warning := range preview.Warnings {
			sb.WriteString("- " + escapeMarkdownCell(warning) + "\n")
		}
	}
	return sb.String(), nil
}

func markdownBatchList(results []core.BatchResult) string {
	var sb strings.Builder
	sb.WriteString("| Batch | Template | Status | Succeeded | Failed | Total | Finished |\n")
	sb.WriteString("|-------|----------|--------|-----------|--------|-------|----------|\n")
	for _, result := range results {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %s |\n",
			escapeMarkdownCell(result.BatchID),
			escapeMarkdownCell(result.TemplateID),
			result.Status,
			result.SucceededCount,
			result.FailedCount,
			result.Total,
			finishedLabel(result),
		))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
