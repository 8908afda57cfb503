package models

import "time"

// Default values applied at serialization time. The store keeps whatever
// the admin saved, including empty strings.
const (
	PlaceholderCoverURL = "https://placehold.co/200x300?text=No+Image"
	PlaceholderThumbURL = "https://placehold.co/300x169?text=EP"
	DefaultSynopsis     = "No synopsis yet."
	DefaultDuration     = "24m"
)

// AnimeInfo is the free-form detail block of a title. Fixed shape on
// purpose: unknown admin-supplied keys are rejected at bind time instead
// of silently stored.
type AnimeInfo struct {
	Status   string `json:"status"`   // "Ongoing", "Completed", ... default "Unknown"
	Kind     string `json:"kind"`     // "TV", "Movie", "OVA", ... default "TV"
	Rating   string `json:"rating"`   // free text, default "0"
	Released string `json:"released"` // free text release date
	Studio   string `json:"studio"`
	Producer string `json:"producer"`
	AltTitle string `json:"alt_title"`
}

// EpisodeSummary is one entry of a title's denormalized episode list.
//
// The list is a cache, not the source of truth: it may lag behind the
// canonical episodes table and must never be used for navigation or
// counts.
type EpisodeSummary struct {
	Title       string `json:"title"`
	EpisodeSlug string `json:"episode_slug"`
	Date        string `json:"date,omitempty"`
}

// Anime is a catalog title. The slug is the stable external identity and
// is immutable once created.
type Anime struct {
	Slug      string           `json:"slug"`
	Title     string           `json:"title"`
	ImageURL  string           `json:"image_url"`
	Synopsis  string           `json:"synopsis"`
	Info      AnimeInfo        `json:"info"`
	Genres    []string         `json:"genres"`
	Episodes  []EpisodeSummary `json:"episodes,omitempty"` // denormalized summary cache
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// AnimeSummary is the bounded listing shape used by home, search, genre
// and schedule payloads.
type AnimeSummary struct {
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	Status   string `json:"status,omitempty"`
	Rating   string `json:"rating,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Summary projects an Anime into its listing shape. Image normalization
// is NOT applied here; that happens exactly once at serialization.
func (a *Anime) Summary() AnimeSummary {
	return AnimeSummary{
		Slug:     a.Slug,
		Title:    a.Title,
		ImageURL: a.ImageURL,
		Status:   a.Info.Status,
		Rating:   a.Info.Rating,
		Kind:     a.Info.Kind,
	}
}
