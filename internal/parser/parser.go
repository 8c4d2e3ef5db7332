package parser

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"road-metrics-monitor/internal/models"
)

// Parser handles parsing of defect report files
type Parser struct {
	format string
}

// NewParser creates a new parser with the specified format
func NewParser(format string) *Parser {
	return &Parser{format: format}
}

// ParseFile parses a defect report file
func (p *Parser) ParseFile(filename string) ([]models.Defect, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse parses defect reports from a reader
func (p *Parser) Parse(r io.Reader) ([]models.Defect, error) {
	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(r)
	case "json":
		return p.parseJSON(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV formatted defect reports
func (p *Parser) parseCSV(r io.Reader) ([]models.Defect, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map header indices
	indices := make(map[string]int)
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var results []models.Defect
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}
		lineNum++

		d, err := recordToDefect(record, indices)
		if err != nil {
			// Skip bad rows but keep parsing
			fmt.Fprintf(os.Stderr, "warning: line %d: %v\n", lineNum, err)
			continue
		}
		results = append(results, d)
	}

	return results, nil
}

// recordToDefect converts a CSV record to a Defect
func recordToDefect(record []string, indices map[string]int) (models.Defect, error) {
	var d models.Defect
	var err error

	getValue := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	d.DefectType = getValue("defect_type")
	if d.DefectType == "" {
		return d, fmt.Errorf("missing defect_type")
	}

	d.Latitude, err = strconv.ParseFloat(getValue("latitude"), 64)
	if err != nil {
		return d, fmt.Errorf("invalid latitude: %w", err)
	}
	d.Longitude, err = strconv.ParseFloat(getValue("longitude"), 64)
	if err != nil {
		return d, fmt.Errorf("invalid longitude: %w", err)
	}

	// Bulk feeds may omit severity; default matches the ingestion API
	severity := getValue("severity")
	if severity == "" {
		severity = string(models.SeverityMedium)
	}
	d.Severity = models.Severity(severity)

	d.Notes = getValue("notes")
	d.VehicleID = getValue("vehicle_id")

	if tsStr := getValue("timestamp"); tsStr != "" {
		d.Timestamp, err = parseTimestamp(tsStr)
		if err != nil {
			return d, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return d, nil
}

// parseJSON parses JSON formatted defect reports: either a single array or
// newline-delimited objects.
func (p *Parser) parseJSON(r io.Reader) ([]models.Defect, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var results []models.Defect
	if err := json.Unmarshal(data, &results); err == nil {
		return results, nil
	}

	return parseJSONLines(strings.NewReader(string(data)))
}

// parseJSONLines parses newline-delimited JSON
func parseJSONLines(r io.Reader) ([]models.Defect, error) {
	var results []models.Defect
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var d models.Defect
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			fmt.Fprintf(os.Stderr, "warning: line %d: %v\n", lineNum, err)
			continue
		}
		results = append(results, d)
	}

	return results, scanner.Err()
}

// parseTimestamp tries multiple timestamp formats
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	// Try Unix timestamp
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(ts, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

// ValidateDefect validates a defect report before ingestion
func ValidateDefect(d *models.Defect) []string {
	var errors []string

	if d.DefectType == "" {
		errors = append(errors, "defect_type is required")
	}
	if !d.Severity.Valid() {
		errors = append(errors, "severity must be one of: low, medium, high, critical")
	}
	if !d.HasCoordinates() {
		errors = append(errors, "coordinates must be finite, latitude in [-90, 90] and longitude in [-180, 180]")
	}

	return errors
}
