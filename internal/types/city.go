package types

// City matches the cities table in the local cache. The ID is assigned by the
// remote store on creation and is immutable afterwards.
type City struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"image_url"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is a point of interest inside a city. Categories is the decoded
// form of the delimiter-joined column in the local cache. The Initial* fields
// carry the optional seed review written together with the location.
type Location struct {
	ID              string   `json:"id"`
	CityID          string   `json:"city_id"`
	Name            string   `json:"name"`
	Categories      []string `json:"categories"`
	ImageURL        string   `json:"image_url"`
	Address         *string  `json:"address,omitempty"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	InitialReview   *string  `json:"initial_review,omitempty"`
	InitialRating   *int     `json:"initial_rating,omitempty"`
	InitialUsername *string  `json:"initial_username,omitempty"`
	InitialUserID   *string  `json:"initial_user_id,omitempty"`
}

// CityDraft holds the fields a caller supplies when creating a city in the
// remote store. The image is uploaded out of band; only its URL travels here.
type CityDraft struct {
	Name      string  `json:"name"`
	ImageURL  string  `json:"image_url"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationDraft holds the fields for creating a location under a city.
type LocationDraft struct {
	Name        string   `json:"name"`
	Categories  []string `json:"categories"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Address     string   `json:"address"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
}
