package models

import "strings"

// Image URL normalization (empty/blank → placeholder) is applied exactly
// once per outgoing object, at serialization time, regardless of entry
// point. It is idempotent and never written back to the store.

func normalizeURL(u, placeholder string) string {
	if strings.TrimSpace(u) == "" {
		return placeholder
	}
	return u
}

// NormalizeSummaries fixes up cover URLs on a listing payload in place
// and returns a non-nil slice for JSON friendliness.
func NormalizeSummaries(list []AnimeSummary) []AnimeSummary {
	if list == nil {
		return []AnimeSummary{}
	}
	for i := range list {
		list[i].ImageURL = normalizeURL(list[i].ImageURL, PlaceholderCoverURL)
	}
	return list
}

// NormalizeAnime applies display defaults to a full title payload.
func NormalizeAnime(a *Anime) *Anime {
	a.ImageURL = normalizeURL(a.ImageURL, PlaceholderCoverURL)
	if strings.TrimSpace(a.Synopsis) == "" {
		a.Synopsis = DefaultSynopsis
	}
	if strings.TrimSpace(a.Info.Status) == "" {
		a.Info.Status = "Unknown"
	}
	if strings.TrimSpace(a.Info.Kind) == "" {
		a.Info.Kind = "TV"
	}
	if strings.TrimSpace(a.Info.Rating) == "" {
		a.Info.Rating = "0"
	}
	if a.Genres == nil {
		a.Genres = []string{}
	}
	return a
}

// NormalizeEpisodeThumb falls back to the episode placeholder thumb.
func NormalizeEpisodeThumb(u string) string {
	return normalizeURL(u, PlaceholderThumbURL)
}
