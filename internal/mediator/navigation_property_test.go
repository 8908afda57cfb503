package mediator

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Navigation is derived from canonical creation order, so for any run
// length the neighbors of position i are exactly positions i-1 and i+1,
// with nil at the boundaries.
func TestNavigationNeighborsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("prev/next mirror canonical creation order", prop.ForAll(
		func(n, pick int) bool {
			svc, animes, _ := newTestService(t)
			ctx := context.Background()
			seedAnime(t, animes, "show")

			slugs := make([]string, n)
			for i := 0; i < n; i++ {
				ep, _, err := svc.CreateEpisode(ctx, "show", fmt.Sprintf("ep-%d", i+1), "Episode")
				if err != nil {
					return false
				}
				slugs[i] = ep.EpisodeSlug
			}

			idx := pick % n
			nav, err := svc.ResolveNavigation(ctx, "show", slugs[idx])
			if err != nil {
				return false
			}

			if idx == 0 {
				if nav.Prev != nil {
					return false
				}
			} else if nav.Prev == nil || *nav.Prev != slugs[idx-1] {
				return false
			}

			if idx == n-1 {
				if nav.Next != nil {
					return false
				}
			} else if nav.Next == nil || *nav.Next != slugs[idx+1] {
				return false
			}

			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
