package workflow

import (
	"context"
	"fmt"

	"correction-workflow/internal/domain"
)

type TransitionResolver struct{}

// Resolve returns the transitions for the first correction-type tag that has
// any, in the order the tags were attached, and falls back to the generic
// rows. Later tags are never merged in. An empty result means nothing is
// configured for this state.
func (TransitionResolver) Resolve(ctx context.Context, catalog CatalogReader, category, state string, tags []string) ([]domain.Transition, error) {
	for _, tag := range tags {
		if tag == domain.GenericCorrectionType {
			continue
		}
		transitions, err := catalog.ListTransitions(ctx, category, state, tag)
		if err != nil {
			return nil, fmt.Errorf("list transitions for %s/%s/%s: %w", category, state, tag, err)
		}
		if len(transitions) > 0 {
			return transitions, nil
		}
	}

	transitions, err := catalog.ListTransitions(ctx, category, state, domain.GenericCorrectionType)
	if err != nil {
		return nil, fmt.Errorf("list generic transitions for %s/%s: %w", category, state, err)
	}
	return transitions, nil
}
