package sync

import (
	"time"

	"github.com/FACorreiaa/loci-offline-sync/internal/remote"
	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

// Remote collection layout. Locations hang off their city document; reviews
// hang off the attraction they rate.
const (
	collCities      = "cities"
	collLocations   = "locations"
	collAttractions = "attractions"
	collReviews     = "reviews"
)

// normalizeCity converts one loosely typed remote document into a City.
// Missing or wrong-typed fields default to the zero of the target column;
// malformed data degrades, it never fails a refresh.
func normalizeCity(doc remote.Document) types.City {
	return types.City{
		ID:        doc.ID,
		Name:      doc.StringOr("name"),
		ImageURL:  doc.StringOr("imageUrl"),
		Latitude:  doc.FloatOr("latitude"),
		Longitude: doc.FloatOr("longitude"),
	}
}

func normalizeCities(docs []remote.Document) []types.City {
	cities := make([]types.City, 0, len(docs))
	for _, doc := range docs {
		cities = append(cities, normalizeCity(doc))
	}
	return cities
}

// normalizeLocation converts one remote location document. The categories
// field has two legacy wire shapes: a list of strings (non-string elements
// silently dropped) or a singular "category" scalar.
func normalizeLocation(cityID string, doc remote.Document) types.Location {
	return types.Location{
		ID:              doc.ID,
		CityID:          cityID,
		Name:            doc.StringOr("name"),
		Categories:      doc.StringList("categories", "category"),
		ImageURL:        doc.StringOr("imageUrl"),
		Address:         doc.StringPtr("address"),
		Latitude:        doc.FloatOr("latitude"),
		Longitude:       doc.FloatOr("longitude"),
		InitialReview:   doc.StringPtr("initialReview"),
		InitialRating:   doc.IntPtr("initialRating"),
		InitialUsername: doc.StringPtr("initialUsername"),
		InitialUserID:   doc.StringPtr("initialUserId"),
	}
}

func normalizeLocations(cityID string, docs []remote.Document) []types.Location {
	locations := make([]types.Location, 0, len(docs))
	for _, doc := range docs {
		locations = append(locations, normalizeLocation(cityID, doc))
	}
	return locations
}

// normalizeReview converts one remote review document. Reviews are read
// straight from the remote store and never cached.
func normalizeReview(doc remote.Document) types.Review {
	review := types.Review{
		UserID:   doc.StringOr("userId"),
		Username: doc.StringOr("username"),
		Rating:   doc.FloatOr("rating"),
		Text:     doc.StringOr("text"),
	}
	if ts := doc.StringOr("timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			review.Timestamp = parsed
		}
	}
	return review
}
