// Package mediator keeps the denormalized per-title episode summary
// loosely synchronized with the authoritative episode collection, and
// computes derived watch order from the canonical collection at read
// time. The summary list is a write-behind cache with no consistency
// SLA; anything that needs correctness goes through the canonical
// episodes table.
package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"nekostream/internal/anime"
	"nekostream/internal/episode"
	"nekostream/pkg/apperr"
	"nekostream/pkg/models"
)

type Service struct {
	Animes   *anime.Repo
	Episodes *episode.Repo
}

func NewService(animes *anime.Repo, episodes *episode.Repo) *Service {
	return &Service{Animes: animes, Episodes: episodes}
}

// CreateEpisode runs the two-step, non-transactional episode write:
// create the canonical record first, then append to the parent title's
// summary list. The order is fixed. If the second step fails the
// canonical episode is durable but temporarily invisible in
// summary-based views; that is a degraded success, logged here and
// reported through the summaryUpdated flag, never rolled back.
func (s *Service) CreateEpisode(ctx context.Context, animeSlug, token, title string) (*models.Episode, bool, error) {
	parent, err := s.Animes.GetBySlug(ctx, animeSlug)
	if err != nil {
		return nil, false, fmt.Errorf("lookup parent title: %w", err)
	}
	if parent == nil {
		return nil, false, apperr.E(apperr.NotFound, "anime not found", nil)
	}

	ep := &models.Episode{
		ID:          uuid.NewString(),
		AnimeSlug:   parent.Slug,
		AnimeTitle:  parent.Title,
		EpisodeSlug: "/" + animeSlug + "/" + token,
		Title:       title,
		Thumbnail:   parent.ImageURL, // falls back to the parent cover
		Duration:    models.DefaultDuration,
	}

	if err := s.Episodes.Create(ctx, ep); err != nil {
		return nil, false, err
	}

	summary := models.EpisodeSummary{
		Title:       title,
		EpisodeSlug: ep.EpisodeSlug,
		Date:        time.Now().UTC().Format("2006-01-02"),
	}
	if err := s.Animes.AppendEpisodeSummary(ctx, animeSlug, summary); err != nil {
		log.Error().Err(err).
			Str("anime_slug", animeSlug).
			Str("episode_slug", ep.EpisodeSlug).
			Msg("episode created but summary append failed; canonical reads remain authoritative")
		return ep, false, nil
	}

	return ep, true, nil
}

// ResolveNavigation returns the neighbors of an episode in canonical
// creation order. Both neighbors resolve to nil when the current slug is
// absent (e.g. deleted between requests) so the surrounding request can
// still succeed.
func (s *Service) ResolveNavigation(ctx context.Context, animeSlug, currentSlug string) (models.EpisodeNav, error) {
	eps, err := s.Episodes.ListByAnime(ctx, animeSlug)
	if err != nil {
		return models.EpisodeNav{}, fmt.Errorf("resolve navigation: %w", err)
	}

	idx := -1
	for i := range eps {
		if eps[i].EpisodeSlug == currentSlug {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.EpisodeNav{}, nil
	}

	var nav models.EpisodeNav
	if idx > 0 {
		nav.Prev = &eps[idx-1].EpisodeSlug
	}
	if idx < len(eps)-1 {
		nav.Next = &eps[idx+1].EpisodeSlug
	}
	return nav, nil
}

// CascadeResult reports each step of a title delete independently.
type CascadeResult struct {
	TitleDeleted    bool  `json:"title_deleted"`
	EpisodesDeleted int64 `json:"episodes_deleted"`
}

// RemoveTitleCascade deletes the title record, then every episode
// sharing its slug. The two deletes are separate statements, not a
// database cascade: when the second step fails the title is already
// gone and orphaned episodes remain. That state is surfaced as a
// distinct error, never swallowed.
func (s *Service) RemoveTitleCascade(ctx context.Context, animeSlug string) (CascadeResult, error) {
	var res CascadeResult

	ok, err := s.Animes.Delete(ctx, animeSlug)
	if err != nil {
		return res, fmt.Errorf("delete title: %w", err)
	}
	if !ok {
		return res, apperr.E(apperr.NotFound, "anime not found", nil)
	}
	res.TitleDeleted = true

	n, err := s.Episodes.DeleteByAnime(ctx, animeSlug)
	if err != nil {
		log.Error().Err(err).Str("anime_slug", animeSlug).
			Msg("title deleted but episode cascade failed; orphaned episodes remain")
		return res, apperr.E(apperr.Internal,
			"title deleted but its episodes could not be removed; orphaned episodes remain", err)
	}
	res.EpisodesDeleted = n

	return res, nil
}
