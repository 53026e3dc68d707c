package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/disputekit/disputekit/internal/core"
)

// clientRow is the listing view of a client. SSNs are masked in every format.
type clientRow struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Locality string `json:"locality,omitempty"`
	SSN      string `json:"ssn,omitempty"`
}

func clientRows(clients []core.ClientContext) []clientRow {
	rows := make([]clientRow, 0, len(clients))
	for _, c := range clients {
		row := clientRow{ClientID: c.ClientID, Name: c.FullName()}
		if lines := c.Address.Lines(); len(lines) > 0 {
			row.Locality = lines[len(lines)-1]
		}
		if c.SSN != "" {
			row.SSN = core.MaskSSN(c.SSN)
		}
		rows = append(rows, row)
	}
	return rows
}

// FormatClientList renders stored clients without sensitive fields.
func FormatClientList(format Format, clients []core.ClientContext) (string, error) {
	rows := clientRows(clients)
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatMarkdown:
		var sb strings.Builder
		sb.WriteString("| Client | Name | Locality | SSN |\n")
		sb.WriteString("|--------|------|----------|-----|\n")
		for _, row := range rows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				escapeMarkdownCell(row.ClientID),
				escapeMarkdownCell(row.Name),
				escapeMarkdownCell(row.Locality),
				row.SSN))
		}
		return sb.String(), nil
	default:
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Client", "Name", "Locality", "SSN"})
		for _, row := range rows {
			t.AppendRow(table.Row{row.ClientID, row.Name, row.Locality, row.SSN})
		}
		return t.Render(), nil
	}
}
