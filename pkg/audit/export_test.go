package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []*Record {
	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return []*Record{
		{
			ID: 1, Timestamp: ts, Action: "CASE_CREATE", Outcome: OutcomeGranted, Severity: SeverityMedium,
			EntityType: EntityCase, EntityID: "case-1", UserID: "user-1", DepartmentID: "dept-1",
			Metadata: map[string]interface{}{"caseNumber": "LIT-2026-00001"},
		},
		{
			ID: 2, Timestamp: ts.Add(time.Minute), Action: "CASE_DELETE_DENIED", Outcome: OutcomeDenied,
			Severity: SeverityHigh, Description: `comma, "quoted"`,
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormatJSON)
	require.NoError(t, err)

	var decoded []*Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "CASE_DELETE_DENIED", decoded[1].Action)
}

func TestExportNDJSON(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var r Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &r))
	assert.Equal(t, int64(1), r.ID)
}

func TestExportCSV(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2026-04-01T12:00:00Z", rows[1][1])
	assert.Equal(t, `{"caseNumber":"LIT-2026-00001"}`, rows[1][13])
	assert.Equal(t, `comma, "quoted"`, rows[2][12])
	assert.Equal(t, "", rows[2][13])
}

func TestExportCSV_Empty(t *testing.T) {
	data, err := Encode(nil, ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(csvHeader, ",")+"\n", string(data))
}

func TestEncode_UnknownFormatIsJSON(t *testing.T) {
	data, err := Encode(sampleRecords(), ExportFormat("xml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "["))
}
