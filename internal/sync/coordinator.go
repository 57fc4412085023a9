// Package sync keeps the local cache consistent with the remote document
// store. Each refresh pulls a scope from the remote store, normalizes the
// loosely typed documents into the local schema, and atomically replaces that
// scope in the cache. The remote store stays the system of record; the cache
// is a disposable projection.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/loci-offline-sync/internal/cache"
	"github.com/FACorreiaa/loci-offline-sync/internal/remote"
	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

// Coordinator orchestrates refreshes under an at-most-one-writer-per-scope
// policy. Concurrent refreshes of the same scope coalesce into a single
// flight, so the final cache state always equals exactly one remote snapshot.
type Coordinator struct {
	logger *slog.Logger
	remote remote.Client
	cache  *cache.Store

	group   singleflight.Group
	recent  *gocache.Cache
	minGap  time.Duration
	metrics *Metrics
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithMinRefreshInterval short-circuits a refresh whose scope completed
// successfully within the given window. Guards against refresh storms from
// rapid manual triggers; zero disables the guard.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.minGap = d }
}

// WithMetrics attaches Prometheus instruments to the coordinator.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator wires the coordinator. Both collaborators are injected so
// tests can substitute fakes.
func NewCoordinator(remoteClient remote.Client, localCache *cache.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger: logger,
		remote: remoteClient,
		cache:  localCache,
		recent: gocache.New(gocache.NoExpiration, time.Minute),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshCities rebuilds the full city scope from the remote cities
// collection. A fetch failure leaves the cache untouched.
func (c *Coordinator) RefreshCities(ctx context.Context) error {
	return c.refreshScope(ctx, "cities", func(ctx context.Context) error {
		ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "RefreshCities")
		defer span.End()

		l := c.logger.With(slog.String("method", "RefreshCities"))

		docs, err := c.remote.FetchCollection(ctx, collCities)
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch cities from remote store", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Remote fetch failed")
			return fmt.Errorf("%w: failed to fetch cities: %w", types.ErrRemoteFailed, err)
		}

		cities := normalizeCities(docs)
		if err := c.cache.ReplaceCities(ctx, cities); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Cache replace failed")
			return fmt.Errorf("failed to replace city scope: %w", err)
		}

		c.metrics.observeRows("cities", len(cities))
		l.InfoContext(ctx, "City scope refreshed", slog.Int("count", len(cities)))
		span.SetAttributes(attribute.Int("cities.count", len(cities)))
		span.SetStatus(codes.Ok, "City scope refreshed")
		return nil
	})
}

// RefreshLocationsForCity rebuilds the location scope of one city. The
// caller must pass the id of a previously synced city; the coordinator does
// not validate existence, only non-emptiness.
func (c *Coordinator) RefreshLocationsForCity(ctx context.Context, cityID string) error {
	if cityID == "" {
		return types.ErrEmptyCityID
	}
	return c.refreshScope(ctx, "locations:"+cityID, func(ctx context.Context) error {
		ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "RefreshLocationsForCity", trace.WithAttributes(
			attribute.String("city.id", cityID),
		))
		defer span.End()

		l := c.logger.With(slog.String("method", "RefreshLocationsForCity"), slog.String("city_id", cityID))

		docs, err := c.remote.FetchSubcollection(ctx, collCities, cityID, collLocations)
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch locations from remote store", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Remote fetch failed")
			return fmt.Errorf("%w: failed to fetch locations for city %q: %w", types.ErrRemoteFailed, cityID, err)
		}

		locations := normalizeLocations(cityID, docs)
		if err := c.cache.ReplaceLocationsForCity(ctx, cityID, locations); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Cache replace failed")
			return fmt.Errorf("failed to replace location scope for city %q: %w", cityID, err)
		}

		c.metrics.observeRows("locations", len(locations))
		l.InfoContext(ctx, "Location scope refreshed", slog.Int("count", len(locations)))
		span.SetAttributes(attribute.Int("locations.count", len(locations)))
		span.SetStatus(codes.Ok, "Location scope refreshed")
		return nil
	})
}

// RefreshAll pulls every city and, sequentially, every city's locations,
// then swaps both tables at a single consistency point. Cost is one remote
// round trip per city; meant for a manual pull-to-refresh, not for
// incremental per-city refreshes.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	return c.refreshScope(ctx, "all", func(ctx context.Context) error {
		ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "RefreshAll")
		defer span.End()

		l := c.logger.With(slog.String("method", "RefreshAll"))

		cityDocs, err := c.remote.FetchCollection(ctx, collCities)
		if err != nil {
			l.ErrorContext(ctx, "Failed to fetch cities from remote store", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "Remote fetch failed")
			return fmt.Errorf("%w: failed to fetch cities: %w", types.ErrRemoteFailed, err)
		}

		cities := make([]types.City, 0, len(cityDocs))
		var locations []types.Location
		for _, doc := range cityDocs {
			cities = append(cities, normalizeCity(doc))

			locDocs, err := c.remote.FetchSubcollection(ctx, collCities, doc.ID, collLocations)
			if err != nil {
				l.ErrorContext(ctx, "Failed to fetch locations from remote store",
					slog.String("city_id", doc.ID), slog.Any("error", err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "Remote fetch failed")
				return fmt.Errorf("%w: failed to fetch locations for city %q: %w", types.ErrRemoteFailed, doc.ID, err)
			}
			locations = append(locations, normalizeLocations(doc.ID, locDocs)...)
		}

		if err := c.cache.ReplaceAll(ctx, cities, locations); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Cache replace failed")
			return fmt.Errorf("failed to replace full dataset: %w", err)
		}

		c.metrics.observeRows("cities", len(cities))
		c.metrics.observeRows("locations", len(locations))
		l.InfoContext(ctx, "Full dataset refreshed",
			slog.Int("cities", len(cities)), slog.Int("locations", len(locations)))
		span.SetAttributes(
			attribute.Int("cities.count", len(cities)),
			attribute.Int("locations.count", len(locations)),
		)
		span.SetStatus(codes.Ok, "Full dataset refreshed")
		return nil
	})
}

// refreshScope serializes refreshes per scope. Concurrent callers of the
// same scope join the in-flight refresh and share its result; a scope that
// completed successfully within the min-refresh window short-circuits.
func (c *Coordinator) refreshScope(ctx context.Context, scope string, fn func(context.Context) error) error {
	if c.minGap > 0 {
		if _, fresh := c.recent.Get(scope); fresh {
			c.logger.DebugContext(ctx, "refresh skipped, scope is fresh", slog.String("scope", scope))
			return nil
		}
	}

	_, err, shared := c.group.Do(scope, func() (any, error) {
		start := time.Now()
		err := fn(ctx)
		c.metrics.observeRefresh(scope, err, time.Since(start))
		if err == nil && c.minGap > 0 {
			c.recent.Set(scope, time.Now(), c.minGap)
		}
		return nil, err
	})
	if shared {
		c.logger.DebugContext(ctx, "refresh coalesced with in-flight refresh", slog.String("scope", scope))
	}
	return err
}

// GetCities returns the cached city snapshot.
func (c *Coordinator) GetCities(ctx context.Context) ([]types.City, error) {
	return c.cache.ListCities(ctx)
}

// GetLocationsForCity returns the cached location snapshot for one city.
// An unknown city yields an empty slice.
func (c *Coordinator) GetLocationsForCity(ctx context.Context, cityID string) ([]types.Location, error) {
	return c.cache.ListLocationsForCity(ctx, cityID)
}

// WatchCities streams city snapshots: the current one immediately, then a
// fresh one after every successful refresh of the scope.
func (c *Coordinator) WatchCities(ctx context.Context) <-chan []types.City {
	return c.cache.WatchCities(ctx)
}

// WatchLocationsForCity streams location snapshots for one city.
func (c *Coordinator) WatchLocationsForCity(ctx context.Context, cityID string) <-chan []types.Location {
	return c.cache.WatchLocationsForCity(ctx, cityID)
}

// AddCity writes a new city to the remote store and refreshes the city
// scope so the cache converges. Returns the store-assigned city id. A
// refresh failure after a successful write is logged, not returned; the
// cache catches up on the next refresh.
func (c *Coordinator) AddCity(ctx context.Context, draft types.CityDraft) (string, error) {
	ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "AddCity")
	defer span.End()

	if draft.Name == "" {
		return "", fmt.Errorf("%w: city name is required", types.ErrBadRequest)
	}

	id := uuid.NewString()
	fields := map[string]remote.Value{
		"id":        remote.String(id),
		"name":      remote.String(draft.Name),
		"imageUrl":  remote.String(draft.ImageURL),
		"latitude":  remote.Number(draft.Latitude),
		"longitude": remote.Number(draft.Longitude),
	}
	if err := c.remote.CreateDocument(ctx, collCities, id, fields); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Remote write failed")
		return "", fmt.Errorf("failed to create city: %w", err)
	}

	if err := c.RefreshCities(ctx); err != nil {
		c.logger.WarnContext(ctx, "city created but refresh failed",
			slog.String("city_id", id), slog.Any("error", err))
	}

	span.SetAttributes(attribute.String("city.id", id))
	span.SetStatus(codes.Ok, "City created")
	return id, nil
}

// AddLocation writes a new location under a city and refreshes that city's
// location scope. Category names must not contain the storage delimiter.
func (c *Coordinator) AddLocation(ctx context.Context, cityID string, draft types.LocationDraft) (string, error) {
	ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "AddLocation", trace.WithAttributes(
		attribute.String("city.id", cityID),
	))
	defer span.End()

	if cityID == "" {
		return "", types.ErrEmptyCityID
	}
	if draft.Name == "" {
		return "", fmt.Errorf("%w: location name is required", types.ErrBadRequest)
	}
	if err := cache.ValidateCategories(draft.Categories); err != nil {
		return "", err
	}

	categories := make([]remote.Value, 0, len(draft.Categories))
	for _, cat := range draft.Categories {
		categories = append(categories, remote.String(cat))
	}

	id := uuid.NewString()
	fields := map[string]remote.Value{
		"name":        remote.String(draft.Name),
		"categories":  remote.List(categories...),
		"description": remote.String(draft.Description),
		"imageUrl":    remote.String(draft.ImageURL),
		"address":     remote.String(draft.Address),
		"latitude":    remote.Number(draft.Latitude),
		"longitude":   remote.Number(draft.Longitude),
	}
	if err := c.remote.CreateSubdocument(ctx, collCities, cityID, collLocations, id, fields); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Remote write failed")
		return "", fmt.Errorf("failed to create location in city %q: %w", cityID, err)
	}

	if err := c.RefreshLocationsForCity(ctx, cityID); err != nil {
		c.logger.WarnContext(ctx, "location created but refresh failed",
			slog.String("city_id", cityID), slog.String("location_id", id), slog.Any("error", err))
	}

	span.SetAttributes(attribute.String("location.id", id))
	span.SetStatus(codes.Ok, "Location created")
	return id, nil
}

// AddReview writes a review for a location. Reviews live only in the remote
// store; nothing is cached.
func (c *Coordinator) AddReview(ctx context.Context, locationID string, review types.Review) error {
	ctx, span := otel.Tracer("SyncCoordinator").Start(ctx, "AddReview", trace.WithAttributes(
		attribute.String("location.id", locationID),
	))
	defer span.End()

	if locationID == "" {
		return fmt.Errorf("%w: location id is required", types.ErrBadRequest)
	}
	if review.Rating < 0 || review.Rating > 5 {
		return types.ErrBadRating
	}

	ts := review.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	fields := map[string]remote.Value{
		"userId":    remote.String(review.UserID),
		"username":  remote.String(review.Username),
		"rating":    remote.Number(review.Rating),
		"text":      remote.String(review.Text),
		"timestamp": remote.String(ts.Format(time.RFC3339)),
	}
	if err := c.remote.CreateSubdocument(ctx, collAttractions, locationID, collReviews, uuid.NewString(), fields); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Remote write failed")
		return fmt.Errorf("failed to create review for location %q: %w", locationID, err)
	}

	span.SetStatus(codes.Ok, "Review created")
	return nil
}

// ListReviews fetches the reviews of a location straight from the remote
// store.
func (c *Coordinator) ListReviews(ctx context.Context, locationID string) ([]types.Review, error) {
	if locationID == "" {
		return nil, fmt.Errorf("%w: location id is required", types.ErrBadRequest)
	}

	docs, err := c.remote.FetchSubcollection(ctx, collAttractions, locationID, collReviews)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch reviews for location %q: %w", types.ErrRemoteFailed, locationID, err)
	}

	reviews := make([]types.Review, 0, len(docs))
	for _, doc := range docs {
		reviews = append(reviews, normalizeReview(doc))
	}
	return reviews, nil
}
