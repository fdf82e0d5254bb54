package cmd

import (
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/domain"
	"github.com/JakLjk/BUSINESS-DATA-API/workers/scraper/services"
)

var outputJSON bool

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func renderListing(w io.Writer, docs []services.ListedDocument) error {
	if outputJSON {
		return writeJSON(w, docs)
	}
	t := newTable(w, table.Row{"Identity", "Type", "Name", "From", "To", "Status", "Stored"})
	for _, d := range docs {
		t.AppendRow(table.Row{d.Identity, d.Type, d.Name, d.PeriodFrom, d.PeriodTo, d.Status, d.Stored})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(docs)})
	t.Render()
	return nil
}

func renderStatuses(w io.Writer, records []domain.StatusRecord) error {
	if outputJSON {
		return writeJSON(w, records)
	}
	t := newTable(w, table.Row{"Identity", "Status", "Message", "Updated"})
	for _, r := range records {
		t.AppendRow(table.Row{r.Identity, r.Status, r.Message, r.UpdatedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
	return nil
}

func renderStored(w io.Writer, docs []domain.StoredDocument) error {
	if outputJSON {
		return writeJSON(w, docs)
	}
	t := newTable(w, table.Row{"Identity", "Type", "Name", "From", "To", "File"})
	for _, d := range docs {
		t.AppendRow(table.Row{d.Identity, d.Type, d.Name, d.PeriodFrom, d.PeriodTo, d.SavedFileName})
	}
	t.Render()
	return nil
}
