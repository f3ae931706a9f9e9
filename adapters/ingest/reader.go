package ingest

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"reefdemog/domain/coral"
)

// FileReader loads observation files. Both .xlsx (first sheet) and .csv are
// supported; columns are matched by header name, not position.
type FileReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewFileReader creates a reader for the given path, choosing the format from
// the extension.
func NewFileReader(filePath string) *FileReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &FileReader{filePath: filePath, fileType: fileType}
}

// Read loads and parses the observation file
func (r *FileReader) Read() ([]coral.Observation, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}
	switch r.fileType {
	case "csv":
		return r.readCSV()
	default:
		return r.readExcel()
	}
}

func (r *FileReader) readExcel() ([]coral.Observation, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	log.Printf("[Ingest] read %d rows from %s (%s)", len(rows), r.filePath, sheets[0])
	return parseRows(rows)
}

func (r *FileReader) readCSV() ([]coral.Observation, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	log.Printf("[Ingest] read %d rows from %s", len(rows), r.filePath)
	return parseRows(rows)
}

// parseRows converts header-plus-data string rows into observations. Rows with
// unparseable required fields are skipped and counted, never silently coerced.
func parseRows(rows [][]string) ([]coral.Observation, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[normalizeHeader(h)] = i
	}
	for _, required := range []string{"study", "region", "size_cm2", "fragment_status", "survey_year"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	observations := make([]coral.Observation, 0, len(rows)-1)
	skipped := 0
	for rowNum, row := range rows[1:] {
		obs, err := parseRow(row, cols)
		if err != nil {
			skipped++
			log.Printf("[Ingest] skipping row %d: %v", rowNum+2, err)
			continue
		}
		observations = append(observations, obs)
	}
	if skipped > 0 {
		log.Printf("[Ingest] skipped %d of %d data rows", skipped, len(rows)-1)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("no parseable observation rows")
	}
	return observations, nil
}

func parseRow(row []string, cols map[string]int) (coral.Observation, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var obs coral.Observation
	obs.Study = get("study")
	obs.Region = get("region")
	obs.Site = get("site")
	obs.Disturbance = get("disturbance")
	if obs.Study == "" || obs.Region == "" {
		return obs, fmt.Errorf("empty study or region")
	}

	size, err := strconv.ParseFloat(get("size_cm2"), 64)
	if err != nil {
		return obs, fmt.Errorf("bad size_cm2 %q", get("size_cm2"))
	}
	obs.SizeCm2 = size

	year, err := strconv.Atoi(get("survey_year"))
	if err != nil {
		return obs, fmt.Errorf("bad survey_year %q", get("survey_year"))
	}
	obs.SurveyYear = year

	status := strings.ToLower(get("fragment_status"))
	switch status {
	case "fragment", "colony":
		obs.FragmentStatus = coral.FragmentStatus(status)
	default:
		return obs, fmt.Errorf("bad fragment_status %q", get("fragment_status"))
	}

	if s := get("end_size_cm2"); s != "" {
		end, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return obs, fmt.Errorf("bad end_size_cm2 %q", s)
		}
		obs.EndSizeCm2 = &end
	}
	if s := get("survived"); s != "" {
		survived, err := parseBool(s)
		if err != nil {
			return obs, err
		}
		obs.Survived = &survived
	}
	if s := get("growth_rate"); s != "" {
		growth, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return obs, fmt.Errorf("bad growth_rate %q", s)
		}
		obs.GrowthRate = &growth
	}
	if obs.Survived == nil && obs.GrowthRate == nil {
		return obs, fmt.Errorf("row has neither survival nor growth outcome")
	}
	return obs, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "survived":
		return true, nil
	case "0", "false", "no", "n", "died", "dead":
		return false, nil
	}
	return false, fmt.Errorf("bad survived value %q", s)
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(h), " ", "_"))
}
