package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatBatch renders one row per client in completion order.
func (f *TableFormatter) FormatBatch(result *core.BatchResult) (string, error) {
	if result == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("Batch %s (%s)", result.BatchID, result.Status))
	t.AppendHeader(table.Row{"Client", "Status", "Bureaus", "Disputes", "Attempts", "Notes"})

	for _, item := range result.Items {
		t.AppendRow(table.Row{
			item.ClientID,
			string(item.Status),
			bureauList(item.Bureaus),
			len(item.DisputeIDs),
			item.Attempts,
			itemErrorLabel(item),
		})
	}

	t.Style().Format.Footer = text.FormatDefault
	t.AppendFooter(table.Row{"", "", "", "", "", summaryLine(result)})
	t.SetCaption(bureauSummary(result))
	return t.Render(), nil
}

// FormatTemplates renders the template catalog.
func (f *TableFormatter) FormatTemplates(templates []core.Template) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Bureau", "Active", "Placeholders"})

	for _, tpl := range templates {
		bureau := "all"
		if tpl.Bureau != "" {
			bureau = tpl.Bureau.DisplayName()
		}
		t.AppendRow(table.Row{
			tpl.ID,
			tpl.Name,
			string(tpl.Type),
			bureau,
			tpl.IsActive,
			len(letter.ExtractPlaceholders(tpl.Subject + "\n" + tpl.Body)),
		})
	}
	return t.Render(), nil
}

// FormatPreview renders the preview letter followed by sampled tokens.
func (f *TableFormatter) FormatPreview(preview letter.PreviewResult) (string, error) {
	var sb strings.Builder
	sb.WriteString("Subject: " + preview.Letter.Subject + "\n\n")
	sb.WriteString(preview.Letter.Body)
	if !strings.HasSuffix(preview.Letter.Body, "\n") {
		sb.WriteString("\n")
	}

	if len(preview.Tokens) > 0 {
		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Placeholder", "Source"})
		sampled := make(map[string]bool, len(preview.Sampled))
		for _, token := range preview.Sampled {
			sampled[token] = true
		}
		for _, token := range preview.Tokens {
			source := "resolved"
			if sampled[token] {
				source = "sample"
			}
			t.AppendRow(table.Row{token, source})
		}
		sb.WriteString("\n" + t.Render())
	}
	if len(preview.Warnings) > 0 {
		sb.WriteString("\n\nWarnings:\n")
		for _, warning := range preview.Warnings {
			sb.WriteString("  - " + warning + "\n")
		}
	}
	return sb.String(), nil
}

func tableBatchList(results []core.BatchResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Batch", "Template", "Status", "Succeeded", "Failed", "Total", "Finished"})
	for _, result := range results {
		t.AppendRow(table.Row{
			result.BatchID,
			result.TemplateID,
			string(result.Status),
			result.SucceededCount,
			result.FailedCount,
			result.Total,
			finishedLabel(result),
		})
	}
	return t.Render()
}
