package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Encode renders records in the given format. Unknown formats fall back to JSON.
func Encode(records []*Record, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportCSV(records)
	case ExportFormatNDJSON:
		return exportNDJSON(records)
	default:
		return exportJSON(records)
	}
}

// exportJSON exports records as a JSON array
func exportJSON(records []*Record) ([]byte, error) {
	return json.MarshalIndent(records, "", "  ")
}

// exportNDJSON exports records as newline-delimited JSON
func exportNDJSON(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, r := range records {
		if err := encoder.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to encode record: %w", err)
		}
	}

	return buf.Bytes(), nil
}

var csvHeader = []string{
	"ID",
	"Timestamp",
	"Action",
	"Outcome",
	"Severity",
	"EntityType",
	"EntityID",
	"UserID",
	"DepartmentID",
	"IPAddress",
	"UserAgent",
	"RequestID",
	"Description",
	"Metadata",
}

// exportCSV exports records as CSV, metadata as a JSON column
func exportCSV(records []*Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		metadata := ""
		if len(r.Metadata) > 0 {
			data, err := json.Marshal(r.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to encode metadata: %w", err)
			}
			metadata = string(data)
		}

		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Action,
			string(r.Outcome),
			string(r.Severity),
			string(r.EntityType),
			r.EntityID,
			r.UserID,
			r.DepartmentID,
			r.IPAddress,
			r.UserAgent,
			r.RequestID,
			r.Description,
			metadata,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
