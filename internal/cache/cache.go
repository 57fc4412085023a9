// Package cache is the on-device SQLite projection of the remote city and
// location data. It is disposable: every scope is rebuilt wholesale by the
// sync layer and the remote store stays the system of record.
//
// Only this package may touch the database. All other packages receive a
// [*Store] and call its methods.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Scope names used for change notification. Location scopes are per city:
// locationScope(cityID).
const cityScope = "cities"

func locationScope(cityID string) string { return "locations:" + cityID }

// Store is the SQLite-backed local cache.
type Store struct {
	logger *slog.Logger
	db     *sql.DB

	mu      sync.Mutex
	nextSub int
	subs    map[string]map[int]chan struct{}
}

// Open opens (or creates) the cache database at path, applies migrations, and
// configures WAL mode. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating cache database: %w", err)
	}

	logger.Info("local cache opened", slog.String("path", path))

	return &Store{
		logger: logger,
		db:     db,
		subs:   map[string]map[int]chan struct{}{},
	}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// ReplaceCities atomically swaps the whole city scope for the given set.
// The clear and inserts run in one transaction, so readers never observe a
// half-replaced scope and a failed replace leaves the prior state intact.
func (s *Store) ReplaceCities(ctx context.Context, cities []types.City) error {
	ctx, span := otel.Tracer("LocalCache").Start(ctx, "ReplaceCities")
	defer span.End()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cities`); err != nil {
			return fmt.Errorf("clearing cities: %w", err)
		}
		return insertCities(ctx, tx, cities)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to replace city scope", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Replace failed")
		return err
	}

	s.logger.InfoContext(ctx, "city scope replaced", slog.Int("count", len(cities)))
	span.SetAttributes(attribute.Int("cities.count", len(cities)))
	span.SetStatus(codes.Ok, "City scope replaced")

	s.notify(cityScope)
	return nil
}

// ReplaceLocationsForCity atomically swaps the location rows belonging to one
// city. Rows of other cities are untouched.
func (s *Store) ReplaceLocationsForCity(ctx context.Context, cityID string, locations []types.Location) error {
	ctx, span := otel.Tracer("LocalCache").Start(ctx, "ReplaceLocationsForCity")
	defer span.End()
	span.SetAttributes(attribute.String("city.id", cityID))

	if cityID == "" {
		return types.ErrEmptyCityID
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM locations WHERE city_id = ?`, cityID); err != nil {
			return fmt.Errorf("clearing locations for city %q: %w", cityID, err)
		}
		return insertLocations(ctx, tx, locations)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to replace location scope",
			slog.String("city_id", cityID), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Replace failed")
		return err
	}

	s.logger.InfoContext(ctx, "location scope replaced",
		slog.String("city_id", cityID), slog.Int("count", len(locations)))
	span.SetAttributes(attribute.Int("locations.count", len(locations)))
	span.SetStatus(codes.Ok, "Location scope replaced")

	s.notify(locationScope(cityID))
	return nil
}

// ReplaceAll swaps both tables in a single transaction: one full-dataset
// consistency point for the pull-to-refresh-everything path.
func (s *Store) ReplaceAll(ctx context.Context, cities []types.City, locations []types.Location) error {
	ctx, span := otel.Tracer("LocalCache").Start(ctx, "ReplaceAll")
	defer span.End()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM locations`); err != nil {
			return fmt.Errorf("clearing locations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cities`); err != nil {
			return fmt.Errorf("clearing cities: %w", err)
		}
		if err := insertCities(ctx, tx, cities); err != nil {
			return err
		}
		return insertLocations(ctx, tx, locations)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to replace full dataset", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Replace failed")
		return err
	}

	s.logger.InfoContext(ctx, "full dataset replaced",
		slog.Int("cities", len(cities)), slog.Int("locations", len(locations)))
	span.SetAttributes(
		attribute.Int("cities.count", len(cities)),
		attribute.Int("locations.count", len(locations)),
	)
	span.SetStatus(codes.Ok, "Full dataset replaced")

	s.notifyAll()
	return nil
}

// ListCities returns the current city snapshot, ordered by name.
func (s *Store) ListCities(ctx context.Context) ([]types.City, error) {
	query, args, err := sq.
		Select("id", "name", "image_url", "latitude", "longitude").
		From("cities").
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building city query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cities: %w", err)
	}
	defer rows.Close()

	cities := []types.City{}
	for rows.Next() {
		var c types.City
		if err := rows.Scan(&c.ID, &c.Name, &c.ImageURL, &c.Latitude, &c.Longitude); err != nil {
			return nil, fmt.Errorf("scanning city row: %w", err)
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// ListLocationsForCity returns the current location snapshot for one city.
// An unknown city yields an empty slice, not an error.
func (s *Store) ListLocationsForCity(ctx context.Context, cityID string) ([]types.Location, error) {
	query, args, err := sq.
		Select("id", "city_id", "name", "categories", "image_url", "address",
			"latitude", "longitude",
			"initial_review", "initial_rating", "initial_username", "initial_user_id").
		From("locations").
		Where(sq.Eq{"city_id": cityID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building location query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying locations for city %q: %w", cityID, err)
	}
	defer rows.Close()

	locations := []types.Location{}
	for rows.Next() {
		var l types.Location
		var categories string
		var address, review, username, userID sql.NullString
		var rating sql.NullInt64

		err := rows.Scan(&l.ID, &l.CityID, &l.Name, &categories, &l.ImageURL, &address,
			&l.Latitude, &l.Longitude, &review, &rating, &username, &userID)
		if err != nil {
			return nil, fmt.Errorf("scanning location row: %w", err)
		}

		l.Categories = SplitCategories(categories)
		l.Address = nullStringPtr(address)
		l.InitialReview = nullStringPtr(review)
		l.InitialUsername = nullStringPtr(username)
		l.InitialUserID = nullStringPtr(userID)
		if rating.Valid {
			r := int(rating.Int64)
			l.InitialRating = &r
		}

		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertCities(ctx context.Context, tx *sql.Tx, cities []types.City) error {
	if len(cities) == 0 {
		return nil
	}
	builder := sq.
		Insert("cities").
		Columns("id", "name", "image_url", "latitude", "longitude").
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, image_url = excluded.image_url, latitude = excluded.latitude, longitude = excluded.longitude")
	for _, c := range cities {
		builder = builder.Values(c.ID, c.Name, c.ImageURL, c.Latitude, c.Longitude)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("building city insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting cities: %w", err)
	}
	return nil
}

func insertLocations(ctx context.Context, tx *sql.Tx, locations []types.Location) error {
	if len(locations) == 0 {
		return nil
	}
	builder := sq.
		Insert("locations").
		Columns("id", "city_id", "name", "categories", "image_url", "address",
			"latitude", "longitude",
			"initial_review", "initial_rating", "initial_username", "initial_user_id").
		Suffix("ON CONFLICT(id) DO UPDATE SET city_id = excluded.city_id, name = excluded.name, categories = excluded.categories, image_url = excluded.image_url, address = excluded.address, latitude = excluded.latitude, longitude = excluded.longitude, initial_review = excluded.initial_review, initial_rating = excluded.initial_rating, initial_username = excluded.initial_username, initial_user_id = excluded.initial_user_id")
	for _, l := range locations {
		builder = builder.Values(l.ID, l.CityID, l.Name, JoinCategories(l.Categories), l.ImageURL,
			ptrNullString(l.Address), l.Latitude, l.Longitude,
			ptrNullString(l.InitialReview), ptrNullInt(l.InitialRating),
			ptrNullString(l.InitialUsername), ptrNullString(l.InitialUserID))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("building location insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting locations: %w", err)
	}
	return nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func ptrNullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrNullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
