package airtable

import "github.com/Suryakiran09/Outlook-Automation-Pipeline/pkg/pipeline"

// Airtable column names for the recipient summary table.
const (
	fieldRecipientEmail = "Recipient Email"
	fieldCompany        = "Company / Management"
	fieldName           = "Name"
	fieldTotalMailsSent = "Total Mails Sent"
	fieldLastInteracted = "Last Interacted Date"
)

// Wire types for the records API.

type listResponse struct {
	Records []rawRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

type rawRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type recordsPayload struct {
	Records []writeRecord `json:"records"`
}

type writeRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

// toRecord extracts the tracked fields from one raw row. Unknown columns are
// ignored; missing columns read as zero values.
func (r rawRecord) toRecord() pipeline.Record {
	rec := pipeline.Record{ID: r.ID}

	if v, ok := r.Fields[fieldRecipientEmail].(string); ok {
		rec.Fields.RecipientEmail = v
	}
	if v, ok := r.Fields[fieldCompany].(string); ok {
		rec.Fields.Company = v
	}
	if v, ok := r.Fields[fieldName].(string); ok {
		rec.Fields.Name = v
	}
	if v, ok := r.Fields[fieldTotalMailsSent].(float64); ok {
		rec.Fields.TotalMailsSent = int(v)
	}
	if v, ok := r.Fields[fieldLastInteracted].(string); ok {
		rec.Fields.LastInteracted = v
	}

	return rec
}

// insertFields serializes the full field set for a new row.
func insertFields(f pipeline.Fields) map[string]any {
	fields := map[string]any{
		fieldRecipientEmail: f.RecipientEmail,
		fieldCompany:        f.Company,
		fieldName:           f.Name,
		fieldTotalMailsSent: f.TotalMailsSent,
	}
	if f.LastInteracted != "" {
		fields[fieldLastInteracted] = f.LastInteracted
	}
	return fields
}

// updateFields serializes only the tracked fields that change.
func updateFields(u pipeline.Update) map[string]any {
	return map[string]any{
		fieldTotalMailsSent: u.TotalMailsSent,
		fieldLastInteracted: u.LastInteracted,
	}
}
