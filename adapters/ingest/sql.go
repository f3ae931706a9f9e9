package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "modernc.org/sqlite"          // embedded sqlite driver

	"reefdemog/domain/coral"
)

// observationRow is the sqlx scan target mirroring the observations table
type observationRow struct {
	Study          string   `db:"study"`
	Region         string   `db:"region"`
	Site           *string  `db:"site"`
	SizeCm2        float64  `db:"size_cm2"`
	EndSizeCm2     *float64 `db:"end_size_cm2"`
	Survived       *bool    `db:"survived"`
	GrowthRate     *float64 `db:"growth_rate"`
	FragmentStatus string   `db:"fragment_status"`
	SurveyYear     int      `db:"survey_year"`
	Disturbance    *string  `db:"disturbance"`
}

// SQLReader loads observations from a relational source. The driver is either
// "postgres" (DSN URL) or "sqlite" (file path).
type SQLReader struct {
	driver string
	dsn    string
	table  string
}

// NewSQLReader creates a SQL-backed observation reader
func NewSQLReader(driver, dsn, table string) *SQLReader {
	return &SQLReader{driver: driver, dsn: dsn, table: table}
}

// Read connects, loads every observation row, and closes the connection. The
// dataset is read once at startup; no connection is held afterwards.
func (r *SQLReader) Read(ctx context.Context) ([]coral.Observation, error) {
	db, err := sqlx.ConnectContext(ctx, r.driver, r.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s source: %w", r.driver, err)
	}
	defer db.Close()

	query := fmt.Sprintf(`SELECT study, region, site, size_cm2, end_size_cm2,
		survived, growth_rate, fragment_status, survey_year, disturbance
		FROM %s`, r.table)

	var rows []observationRow
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load observations from %s: %w", r.table, err)
	}
	log.Printf("[Ingest] loaded %d rows from %s table %s", len(rows), r.driver, r.table)

	observations := make([]coral.Observation, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		obs := coral.Observation{
			Study:          row.Study,
			Region:         row.Region,
			SizeCm2:        row.SizeCm2,
			EndSizeCm2:     row.EndSizeCm2,
			Survived:       row.Survived,
			GrowthRate:     row.GrowthRate,
			FragmentStatus: coral.FragmentStatus(row.FragmentStatus),
			SurveyYear:     row.SurveyYear,
		}
		if row.Site != nil {
			obs.Site = *row.Site
		}
		if row.Disturbance != nil {
			obs.Disturbance = *row.Disturbance
		}
		if obs.Study == "" || obs.Region == "" ||
			(obs.FragmentStatus != coral.StatusFragment && obs.FragmentStatus != coral.StatusColony) ||
			(obs.Survived == nil && obs.GrowthRate == nil) {
			skipped++
			continue
		}
		observations = append(observations, obs)
	}
	if skipped > 0 {
		log.Printf("[Ingest] skipped %d invalid rows", skipped)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("no valid observation rows in %s", r.table)
	}
	return observations, nil
}
