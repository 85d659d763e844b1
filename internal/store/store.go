// Package store is the postgres repository of watershed boundaries.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// ErrUnknownDataset is returned for a dataset with no rows.
var ErrUnknownDataset = errors.New("unknown dataset")

// Store wraps the connection pool.
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Row is one stored watershed.
type Row struct {
	ID         string
	Name       string
	Properties geojson.Properties
	Geometry   geojson.Geometry
}

// DatasetJSON renders every watershed of dataset as a GeoJSON FeatureCollection, in
// load order.
// Background: the dataset cache decodes raw GeoJSON from every source, so postgres
// rows are turned back into the same document the file and HTTP sources serve.
// Constraint: a row with unreadable geometry is emitted with a null geometry and
// left for the decoder to skip; an empty dataset is ErrUnknownDataset.
func (s *Store) DatasetJSON(ctx context.Context, dataset string) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, properties, geometry FROM watersheds WHERE dataset=$1 ORDER BY ordinal, id`, dataset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var id, name string
		var props, geom []byte
		if err := rows.Scan(&id, &name, &props, &geom); err != nil {
			return nil, err
		}
		var g geojson.Geometry
		if err := json.Unmarshal(geom, &g); err != nil {
			// Kept as a null geometry so the decoder reports it as a skipped feature.
			logger.L().Warn("store_bad_geometry", "dataset", dataset, "id", id, "err", err)
		}
		f := &geojson.Feature{Type: "Feature", ID: id, Properties: geojson.Properties{}}
		if g.Coordinates != nil {
			f.Geometry = g.Coordinates
		}
		if len(props) > 0 {
			if err := json.Unmarshal(props, &f.Properties); err != nil {
				return nil, fmt.Errorf("watershed %s properties: %w", id, err)
			}
		}
		if _, ok := f.Properties["name"]; !ok && name != "" {
			f.Properties["name"] = name
		}
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataset, dataset)
	}
	logger.L().Debug("store_dataset_json", "dataset", dataset, "features", len(fc.Features))
	return fc.MarshalJSON()
}

// ReplaceDataset swaps all rows of dataset for fc inside one transaction.
// Constraint: readers see the old or the new rows, never a mix; features without an
// id get their index as id.
func (s *Store) ReplaceDataset(ctx context.Context, dataset, nameProperty string, fc *geojson.FeatureCollection) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM watersheds WHERE dataset=$1`, dataset); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO watersheds(dataset, id, name, properties, geometry, ordinal, updated_at)
        VALUES($1,$2,$3,$4,$5,$6,now())
        ON CONFLICT (dataset, id) DO UPDATE SET name=EXCLUDED.name, properties=EXCLUDED.properties,
            geometry=EXCLUDED.geometry, ordinal=EXCLUDED.ordinal, updated_at=now()`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for i, f := range fc.Features {
		if f.Geometry == nil {
			logger.L().Warn("store_skip_feature", "dataset", dataset, "index", i)
			continue
		}
		id := featureID(f, i)
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return 0, err
		}
		geom, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			return 0, err
		}
		name := f.Properties.MustString(nameProperty, "")
		if _, err := stmt.ExecContext(ctx, dataset, id, name, props, geom, i); err != nil {
			return 0, fmt.Errorf("watershed %s: %w", id, err)
		}
		n++
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO watershed_datasets(dataset, features, loaded_at) VALUES($1,$2,now())
        ON CONFLICT (dataset) DO UPDATE SET features=EXCLUDED.features, loaded_at=now()`, dataset, n); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("store_dataset_replaced", "dataset", dataset, "features", n)
	return n, nil
}

func featureID(f *geojson.Feature, i int) string {
	switch v := f.ID.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
	default:
		return fmt.Sprint(v)
	}
	if v, ok := f.Properties["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return fmt.Sprint(i)
}
