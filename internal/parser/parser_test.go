package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"road-metrics-monitor/internal/models"
)

func TestParseCSV(t *testing.T) {
	input := `latitude,longitude,defect_type,severity,notes,vehicle_id,timestamp
12.9716,77.5946,pothole,high,deep pothole,V101,2026-08-15T08:30:00Z
13.0100,77.5500,crack,,,V102,2026-08-16
not-a-number,77.5500,crack,low,,,
12.8500,77.6500,debris,low,,,`

	p := NewParser("csv")
	defects, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, defects, 3) // bad latitude row skipped

	assert.Equal(t, 12.9716, defects[0].Latitude)
	assert.Equal(t, 77.5946, defects[0].Longitude)
	assert.Equal(t, "pothole", defects[0].DefectType)
	assert.Equal(t, models.SeverityHigh, defects[0].Severity)
	assert.Equal(t, "deep pothole", defects[0].Notes)
	assert.Equal(t, "V101", defects[0].VehicleID)
	assert.Equal(t, time.Date(2026, 8, 15, 8, 30, 0, 0, time.UTC), defects[0].Timestamp)

	// Missing severity defaults to medium
	assert.Equal(t, models.SeverityMedium, defects[1].Severity)
	assert.Equal(t, time.Date(2026, 8, 16, 0, 0, 0, 0, time.UTC), defects[1].Timestamp)

	// Optional fields may be empty
	assert.Empty(t, defects[2].VehicleID)
	assert.True(t, defects[2].Timestamp.IsZero())
}

func TestParseCSVMissingDefectType(t *testing.T) {
	input := `latitude,longitude,defect_type,severity
12.9716,77.5946,,high`

	p := NewParser("csv")
	defects, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, defects)
}

func TestParseJSONArray(t *testing.T) {
	input := `[
		{"latitude": 12.9716, "longitude": 77.5946, "defect_type": "pothole", "severity": "critical", "vehicle_id": "V200"},
		{"latitude": 12.8000, "longitude": 77.7000, "defect_type": "crack", "severity": "low"}
	]`

	p := NewParser("json")
	defects, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, defects, 2)
	assert.Equal(t, models.SeverityCritical, defects[0].Severity)
	assert.Equal(t, "V200", defects[0].VehicleID)
}

func TestParseJSONLines(t *testing.T) {
	input := `{"latitude": 12.9716, "longitude": 77.5946, "defect_type": "pothole", "severity": "high"}
{"latitude": 12.8000, "longitude": 77.7000, "defect_type": "crack", "severity": "low"}
not json at all
{"latitude": 13.0000, "longitude": 77.5000, "defect_type": "debris", "severity": "medium"}`

	p := NewParser("json")
	defects, err := p.Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, defects, 3)
}

func TestParseUnsupportedFormat(t *testing.T) {
	p := NewParser("xml")
	_, err := p.Parse(strings.NewReader("<defects/>"))
	assert.Error(t, err)
}

func TestParseTimestampFormats(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-08-15T08:30:00Z", time.Date(2026, 8, 15, 8, 30, 0, 0, time.UTC)},
		{"2026-08-15 08:30:00", time.Date(2026, 8, 15, 8, 30, 0, 0, time.UTC)},
		{"2026-08-15", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)},
		{"1765792800", time.Unix(1765792800, 0).UTC()},
	}

	for _, tt := range tests {
		got, err := parseTimestamp(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.True(t, got.Equal(tt.want), "input %q: got %v", tt.input, got)
	}

	_, err := parseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestValidateDefect(t *testing.T) {
	valid := models.Defect{
		Latitude: 12.9716, Longitude: 77.5946,
		DefectType: "pothole", Severity: models.SeverityHigh,
	}
	assert.Empty(t, ValidateDefect(&valid))

	badSeverity := valid
	badSeverity.Severity = "extreme"
	errs := ValidateDefect(&badSeverity)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "severity")

	badCoords := valid
	badCoords.Latitude = 95
	errs = ValidateDefect(&badCoords)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "coordinates")

	missingType := valid
	missingType.DefectType = ""
	assert.NotEmpty(t, ValidateDefect(&missingType))
}
