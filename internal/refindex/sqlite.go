package refindex

import (
	"context"
	"database/sql"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// OpenArtifact opens the prebuilt index artifact database at path.
func OpenArtifact(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "refindex: open artifact %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "refindex: exec %s", pragma)
		}
	}
	return db, nil
}

const artifactSchema = `
CREATE TABLE IF NOT EXISTS postal_index (
	code     TEXT PRIMARY KEY,
	city     TEXT,
	district TEXT,
	state    TEXT,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS place_index (
	city_key  TEXT NOT NULL,
	state_key TEXT NOT NULL,
	postal    TEXT,
	city      TEXT,
	district  TEXT,
	state     TEXT,
	lat       REAL NOT NULL,
	lon       REAL NOT NULL,
	PRIMARY KEY (city_key, state_key)
);

CREATE TABLE IF NOT EXISTS locality_index (
	name     TEXT PRIMARY KEY,
	postal   TEXT,
	city     TEXT,
	district TEXT,
	state    TEXT,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL
);
`

// SaveTo writes the store's dataset-derived indices into the artifact
// database, replacing any previous content. Run by the offline batch build.
func (s *Store) SaveTo(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, artifactSchema); err != nil {
		return eris.Wrap(err, "refindex: create artifact schema")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "refindex: begin artifact tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"postal_index", "place_index", "locality_index"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "refindex: clear %s", table)
		}
	}

	for _, code := range s.sortedCodes {
		rec := s.postal[code]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO postal_index (code, city, district, state, lat, lon) VALUES (?, ?, ?, ?, ?, ?)`,
			code, rec.City, rec.District, rec.State, rec.Lat, rec.Lon,
		); err != nil {
			return eris.Wrapf(err, "refindex: insert postal %s", code)
		}
	}
	for _, pe := range s.sortedPlaces {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO place_index (city_key, state_key, postal, city, district, state, lat, lon)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pe.CityKey, pe.StateKey, pe.Rec.PostalCode, pe.Rec.City, pe.Rec.District, pe.Rec.State, pe.Rec.Lat, pe.Rec.Lon,
		); err != nil {
			return eris.Wrapf(err, "refindex: insert place %s", pe.CityKey)
		}
	}
	for _, le := range s.sortedLocalities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO locality_index (name, postal, city, district, state, lat, lon)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			le.Name, le.Rec.PostalCode, le.Rec.City, le.Rec.District, le.Rec.State, le.Rec.Lat, le.Rec.Lon,
		); err != nil {
			return eris.Wrapf(err, "refindex: insert locality %s", le.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "refindex: commit artifact tx")
	}
	return nil
}

// LoadFrom reconstructs a store from a prebuilt artifact database.
func LoadFrom(ctx context.Context, db *sql.DB) (*Store, error) {
	postal := map[string]Record{}
	rows, err := db.QueryContext(ctx, `SELECT code, city, district, state, lat, lon FROM postal_index`)
	if err != nil {
		return nil, eris.Wrap(err, "refindex: query postal_index")
	}
	defer rows.Close()
	for rows.Next() {
		var code string
		var rec Record
		if err := rows.Scan(&code, &rec.City, &rec.District, &rec.State, &rec.Lat, &rec.Lon); err != nil {
			return nil, eris.Wrap(err, "refindex: scan postal row")
		}
		rec.PostalCode = code
		postal[code] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "refindex: iterate postal rows")
	}

	places := map[string]Record{}
	prows, err := db.QueryContext(ctx, `SELECT city_key, state_key, postal, city, district, state, lat, lon FROM place_index`)
	if err != nil {
		return nil, eris.Wrap(err, "refindex: query place_index")
	}
	defer prows.Close()
	for prows.Next() {
		var cityKey, stateKey string
		var rec Record
		if err := prows.Scan(&cityKey, &stateKey, &rec.PostalCode, &rec.City, &rec.District, &rec.State, &rec.Lat, &rec.Lon); err != nil {
			return nil, eris.Wrap(err, "refindex: scan place row")
		}
		places[placeKey(cityKey, stateKey)] = rec
	}
	if err := prows.Err(); err != nil {
		return nil, eris.Wrap(err, "refindex: iterate place rows")
	}

	localities := map[string]Record{}
	lrows, err := db.QueryContext(ctx, `SELECT name, postal, city, district, state, lat, lon FROM locality_index`)
	if err != nil {
		return nil, eris.Wrap(err, "refindex: query locality_index")
	}
	defer lrows.Close()
	for lrows.Next() {
		var name string
		var rec Record
		if err := lrows.Scan(&name, &rec.PostalCode, &rec.City, &rec.District, &rec.State, &rec.Lat, &rec.Lon); err != nil {
			return nil, eris.Wrap(err, "refindex: scan locality row")
		}
		localities[name] = rec
	}
	if err := lrows.Err(); err != nil {
		return nil, eris.Wrap(err, "refindex: iterate locality rows")
	}

	sp, spErr := loadStaticPlaces()
	if spErr != nil {
		zap.L().Warn("refindex: static places table unavailable", zap.Error(spErr))
	}
	return newStore(postal, places, localities, sp), nil
}

// Load resolves the store for the query path: a prebuilt artifact if present,
// else a fresh build from the raw dataset, else empty indices. Missing data
// degrades the affected tiers, it never fails startup.
func Load(ctx context.Context, artifactPath, datasetPath string, region Region) *Store {
	if artifactPath != "" {
		if _, err := os.Stat(artifactPath); err == nil {
			db, err := OpenArtifact(artifactPath)
			if err == nil {
				defer func() { _ = db.Close() }()
				s, loadErr := LoadFrom(ctx, db)
				if loadErr == nil && !s.Empty() {
					np, npl, nl, _ := s.Counts()
					zap.L().Info("refindex: loaded prebuilt artifact",
						zap.String("path", artifactPath),
						zap.Int("postal_codes", np),
						zap.Int("places", npl),
						zap.Int("localities", nl),
					)
					return s
				}
				if loadErr != nil {
					zap.L().Warn("refindex: artifact load failed, rebuilding", zap.Error(loadErr))
				}
			} else {
				zap.L().Warn("refindex: artifact open failed, rebuilding", zap.Error(err))
			}
		}
	}

	if datasetPath != "" {
		rows, err := LoadRows(datasetPath)
		if err == nil && len(rows) > 0 {
			return Build(rows, region)
		}
		if err != nil {
			zap.L().Warn("refindex: dataset unavailable", zap.String("path", datasetPath), zap.Error(err))
		}
	}

	zap.L().Warn("refindex: no reference data available, index tiers disabled")
	return NewEmpty()
}
