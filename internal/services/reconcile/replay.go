package reconcile

import (
	"context"

	"safiripay/internal/domain/event"

	"github.com/rs/zerolog/log"
)

// Replay reopens stored provider events and runs them through
// reconciliation again. Safe to call on already-applied events: terminal
// attempt states absorb the re-application. Returns the replayed count.
func (s *Service) Replay(ctx context.Context, eventIDs []int64) (int, error) {
	count := 0
	for _, id := range eventIDs {
		ev, err := s.events.Requeue(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("event_id", id).Msg("requeue for replay")
			continue
		}
		if ev.Kind != event.KindSTK {
			// Nothing to reconcile; close it back out.
			if err := s.events.MarkProcessed(ctx, ev.ID, ""); err != nil {
				return count, err
			}
			count++
			continue
		}
		if err := s.ProcessSTKCallback(ctx, ev.RawJSON); err != nil {
			log.Error().Err(err).Int64("event_id", id).Msg("replay failed")
			continue
		}
		count++
	}
	return count, nil
}
