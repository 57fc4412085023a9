package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/loci-offline-sync/internal/cache"
	"github.com/FACorreiaa/loci-offline-sync/internal/remote"
	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

func setupCoordinatorTest(t *testing.T, opts ...Option) (*Coordinator, *MockRemoteClient, *cache.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := cache.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mockRemote := new(MockRemoteClient)
	coordinator := NewCoordinator(mockRemote, store, logger, opts...)
	return coordinator, mockRemote, store
}

func doc(id string, fields map[string]remote.Value) remote.Document {
	return remote.Document{ID: id, Fields: fields}
}

func TestRefreshCities(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes and replaces the city scope", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("c1", map[string]remote.Value{
				"name":      remote.String("Antwerp"),
				"imageUrl":  remote.String("https://img/antwerp.jpg"),
				"latitude":  remote.Number(51.2),
				"longitude": remote.Number(4.4),
			}),
		}, nil).Once()

		require.NoError(t, coordinator.RefreshCities(ctx))

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)
		assert.Equal(t, []types.City{{
			ID:        "c1",
			Name:      "Antwerp",
			ImageURL:  "https://img/antwerp.jpg",
			Latitude:  51.2,
			Longitude: 4.4,
		}}, cities)
		mockRemote.AssertExpectations(t)
	})

	t.Run("is idempotent for an unchanged remote dataset", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		snapshot := []remote.Document{
			doc("c1", map[string]remote.Value{"name": remote.String("Antwerp")}),
			doc("c2", map[string]remote.Value{"name": remote.String("Ghent")}),
		}
		mockRemote.On("FetchCollection", mock.Anything, "cities").Return(snapshot, nil).Twice()

		require.NoError(t, coordinator.RefreshCities(ctx))
		first, err := coordinator.GetCities(ctx)
		require.NoError(t, err)

		require.NoError(t, coordinator.RefreshCities(ctx))
		second, err := coordinator.GetCities(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Len(t, second, 2)
	})

	t.Run("numeric coercion", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("int", map[string]remote.Value{"latitude": remote.Number(51)}),
			doc("str", map[string]remote.Value{"latitude": remote.String("51.0")}),
			doc("float", map[string]remote.Value{"latitude": remote.Number(51.0)}),
			doc("bool", map[string]remote.Value{"latitude": remote.Bool(true)}),
			doc("missing", map[string]remote.Value{}),
		}, nil).Once()

		require.NoError(t, coordinator.RefreshCities(ctx))

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)

		byID := map[string]float64{}
		for _, c := range cities {
			byID[c.ID] = c.Latitude
		}
		assert.Equal(t, 51.0, byID["int"])
		assert.Equal(t, 51.0, byID["str"])
		assert.Equal(t, 51.0, byID["float"])
		assert.Equal(t, 0.0, byID["bool"])
		assert.Equal(t, 0.0, byID["missing"])
	})

	t.Run("missing string fields default to empty", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("c1", map[string]remote.Value{"name": remote.Number(42)}),
		}, nil).Once()

		require.NoError(t, coordinator.RefreshCities(ctx))

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "", cities[0].Name)
		assert.Equal(t, "", cities[0].ImageURL)
	})

	t.Run("fetch failure leaves prior cache state untouched", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("c1", map[string]remote.Value{"name": remote.String("Antwerp")}),
		}, nil).Once()
		require.NoError(t, coordinator.RefreshCities(ctx))

		mockRemote.On("FetchCollection", mock.Anything, "cities").
			Return(nil, errors.New("network down")).Once()
		err := coordinator.RefreshCities(ctx)
		require.ErrorIs(t, err, types.ErrRemoteFailed)

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "Antwerp", cities[0].Name)
	})
}

func TestRefreshLocationsForCity(t *testing.T) {
	ctx := context.Background()

	t.Run("empty city id is rejected without a remote call", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		err := coordinator.RefreshLocationsForCity(ctx, "")
		assert.ErrorIs(t, err, types.ErrEmptyCityID)
		mockRemote.AssertNotCalled(t, "FetchSubcollection")
	})

	t.Run("legacy category coercion", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "c1", "locations").
			Return([]remote.Document{
				doc("scalar", map[string]remote.Value{"category": remote.String("Food")}),
				doc("mixed", map[string]remote.Value{
					"categories": remote.List(remote.String("Food"), remote.Number(42), remote.String("Drink")),
				}),
				doc("neither", map[string]remote.Value{"name": remote.String("Anon")}),
			}, nil).Once()

		require.NoError(t, coordinator.RefreshLocationsForCity(ctx, "c1"))

		locations, err := coordinator.GetLocationsForCity(ctx, "c1")
		require.NoError(t, err)

		byID := map[string][]string{}
		for _, l := range locations {
			byID[l.ID] = l.Categories
		}
		assert.Equal(t, []string{"Food"}, byID["scalar"])
		assert.Equal(t, []string{"Food", "Drink"}, byID["mixed"])
		assert.Equal(t, []string{}, byID["neither"])
	})

	t.Run("refreshing one city leaves other scopes alone", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "a", "locations").
			Return([]remote.Document{
				doc("l1", map[string]remote.Value{"name": remote.String("First")}),
			}, nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "b", "locations").
			Return([]remote.Document{
				doc("l2", map[string]remote.Value{"name": remote.String("Second")}),
			}, nil).Once()

		require.NoError(t, coordinator.RefreshLocationsForCity(ctx, "a"))
		require.NoError(t, coordinator.RefreshLocationsForCity(ctx, "b"))

		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "a", "locations").
			Return([]remote.Document{}, nil).Once()
		require.NoError(t, coordinator.RefreshLocationsForCity(ctx, "a"))

		aLocations, err := coordinator.GetLocationsForCity(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, aLocations)

		bLocations, err := coordinator.GetLocationsForCity(ctx, "b")
		require.NoError(t, err)
		require.Len(t, bLocations, 1)
		assert.Equal(t, "Second", bLocations[0].Name)
	})
}

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("c1", map[string]remote.Value{
				"name":      remote.String("Antwerp"),
				"latitude":  remote.Number(51.2),
				"longitude": remote.Number(4.4),
			}),
		}, nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "c1", "locations").
			Return([]remote.Document{
				doc("l1", map[string]remote.Value{
					"name":      remote.String("Cathedral"),
					"category":  remote.String("Culture"),
					"latitude":  remote.Number(51.22),
					"longitude": remote.Number(4.40),
				}),
			}, nil).Once()

		require.NoError(t, coordinator.RefreshAll(ctx))

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "c1", cities[0].ID)
		assert.Equal(t, "Antwerp", cities[0].Name)

		locations, err := coordinator.GetLocationsForCity(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, locations, 1)
		assert.Equal(t, "Cathedral", locations[0].Name)
		assert.Equal(t, []string{"Culture"}, locations[0].Categories)
		mockRemote.AssertExpectations(t)
	})

	t.Run("city with zero locations is valid", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("c1", map[string]remote.Value{"name": remote.String("Antwerp")}),
		}, nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "c1", "locations").
			Return([]remote.Document{}, nil).Once()

		require.NoError(t, coordinator.RefreshAll(ctx))

		locations, err := coordinator.GetLocationsForCity(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, locations)
	})

	t.Run("location fetch failure aborts without touching the cache", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("old", map[string]remote.Value{"name": remote.String("Old Town")}),
		}, nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "old", "locations").
			Return([]remote.Document{}, nil).Once()
		require.NoError(t, coordinator.RefreshAll(ctx))

		mockRemote.On("FetchCollection", mock.Anything, "cities").Return([]remote.Document{
			doc("new", map[string]remote.Value{"name": remote.String("New Town")}),
		}, nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "new", "locations").
			Return(nil, errors.New("network down")).Once()

		require.Error(t, coordinator.RefreshAll(ctx))

		cities, err := coordinator.GetCities(ctx)
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "old", cities[0].ID)
	})
}

// gatedRemote blocks FetchCollection until released so tests can hold a
// refresh in flight deliberately.
type gatedRemote struct {
	MockRemoteClient
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	fetches int
	docs    []remote.Document
}

func (g *gatedRemote) FetchCollection(_ context.Context, _ string) ([]remote.Document, error) {
	g.mu.Lock()
	g.fetches++
	first := g.fetches == 1
	g.mu.Unlock()

	if first {
		close(g.started)
		<-g.release
	}
	return g.docs, nil
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := cache.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gated := &gatedRemote{
		started: make(chan struct{}),
		release: make(chan struct{}),
		docs: []remote.Document{
			doc("c1", map[string]remote.Value{"name": remote.String("Antwerp")}),
		},
	}
	coordinator := NewCoordinator(gated, store, logger)

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = coordinator.RefreshCities(ctx)
	}()

	// Wait until the first refresh holds the scope, then issue a second
	// refresh that must join the in-flight one instead of interleaving.
	<-gated.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = coordinator.RefreshCities(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	gated.mu.Lock()
	fetches := gated.fetches
	gated.mu.Unlock()
	assert.Equal(t, 1, fetches, "concurrent same-scope refreshes must share one remote fetch")

	cities, err := store.ListCities(ctx)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "c1", cities[0].ID)
}

func TestMinRefreshInterval(t *testing.T) {
	ctx := context.Background()
	coordinator, mockRemote, _ := setupCoordinatorTest(t, WithMinRefreshInterval(time.Minute))

	mockRemote.On("FetchCollection", mock.Anything, "cities").
		Return([]remote.Document{}, nil).Once()

	require.NoError(t, coordinator.RefreshCities(ctx))
	// Second call inside the window must not hit the remote store.
	require.NoError(t, coordinator.RefreshCities(ctx))

	mockRemote.AssertExpectations(t)
	mockRemote.AssertNumberOfCalls(t, "FetchCollection", 1)
}

func TestAddCity(t *testing.T) {
	ctx := context.Background()

	t.Run("validates the draft", func(t *testing.T) {
		coordinator, _, _ := setupCoordinatorTest(t)

		_, err := coordinator.AddCity(ctx, types.CityDraft{})
		assert.ErrorIs(t, err, types.ErrBadRequest)
	})

	t.Run("writes remote then refreshes the scope", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("CreateDocument", mock.Anything, "cities", mock.Anything, mock.Anything).
			Return(nil).Once()
		mockRemote.On("FetchCollection", mock.Anything, "cities").
			Return([]remote.Document{}, nil).Once()

		id, err := coordinator.AddCity(ctx, types.CityDraft{Name: "Bruges", Latitude: 51.21, Longitude: 3.22})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		mockRemote.AssertExpectations(t)
	})
}

func TestAddLocation(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a category containing the delimiter", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		_, err := coordinator.AddLocation(ctx, "c1", types.LocationDraft{
			Name:       "Bar Street",
			Categories: []string{"Bars;Pubs"},
		})
		assert.ErrorIs(t, err, types.ErrBadCategory)
		mockRemote.AssertNotCalled(t, "CreateSubdocument")
	})

	t.Run("rejects an empty city id", func(t *testing.T) {
		coordinator, _, _ := setupCoordinatorTest(t)

		_, err := coordinator.AddLocation(ctx, "", types.LocationDraft{Name: "Somewhere"})
		assert.ErrorIs(t, err, types.ErrEmptyCityID)
	})

	t.Run("writes remote then refreshes the scope", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("CreateSubdocument", mock.Anything, "cities", "c1", "locations", mock.Anything, mock.Anything).
			Return(nil).Once()
		mockRemote.On("FetchSubcollection", mock.Anything, "cities", "c1", "locations").
			Return([]remote.Document{}, nil).Once()

		id, err := coordinator.AddLocation(ctx, "c1", types.LocationDraft{
			Name:       "Cathedral",
			Categories: []string{"Culture"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		mockRemote.AssertExpectations(t)
	})
}

func TestAddReview(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects out-of-range rating", func(t *testing.T) {
		coordinator, _, _ := setupCoordinatorTest(t)

		err := coordinator.AddReview(ctx, "l1", types.Review{Rating: 6})
		assert.ErrorIs(t, err, types.ErrBadRating)
	})

	t.Run("writes the review subdocument", func(t *testing.T) {
		coordinator, mockRemote, _ := setupCoordinatorTest(t)

		mockRemote.On("CreateSubdocument", mock.Anything, "attractions", "l1", "reviews", mock.Anything, mock.Anything).
			Return(nil).Once()

		err := coordinator.AddReview(ctx, "l1", types.Review{
			UserID:   "u1",
			Username: "Jan V.",
			Rating:   4,
			Text:     "Worth the climb",
		})
		require.NoError(t, err)
		mockRemote.AssertExpectations(t)
	})
}

func TestListReviews(t *testing.T) {
	ctx := context.Background()
	coordinator, mockRemote, _ := setupCoordinatorTest(t)

	mockRemote.On("FetchSubcollection", mock.Anything, "attractions", "l1", "reviews").
		Return([]remote.Document{
			doc("r1", map[string]remote.Value{
				"userId":    remote.String("u1"),
				"username":  remote.String("Jan V."),
				"rating":    remote.Number(4.5),
				"text":      remote.String("Lovely"),
				"timestamp": remote.String("2026-05-04T10:30:00Z"),
			}),
		}, nil).Once()

	reviews, err := coordinator.ListReviews(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Jan V.", reviews[0].Username)
	assert.Equal(t, 4.5, reviews[0].Rating)
	assert.Equal(t, 2026, reviews[0].Timestamp.Year())
}
