package cache

import (
	"context"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/loci-offline-sync/internal/types"
)

// WatchCities returns a channel that carries the current city snapshot and a
// fresh snapshot after every successful write to the city scope. Delivery is
// latest-wins: a slow consumer always sees the newest snapshot, intermediate
// ones may be skipped. The channel closes when ctx is done. The stream never
// errors; before the first successful refresh it carries an empty snapshot.
func (s *Store) WatchCities(ctx context.Context) <-chan []types.City {
	return watchScope(ctx, s, cityScope, s.ListCities)
}

// WatchLocationsForCity is WatchCities for one city's location scope.
func (s *Store) WatchLocationsForCity(ctx context.Context, cityID string) <-chan []types.Location {
	return watchScope(ctx, s, locationScope(cityID), func(ctx context.Context) ([]types.Location, error) {
		return s.ListLocationsForCity(ctx, cityID)
	})
}

// watchScope runs the subscription loop shared by both watch methods.
func watchScope[T any](ctx context.Context, s *Store, scope string, query func(context.Context) ([]T, error)) <-chan []T {
	signal, cancel := s.subscribe(scope)
	out := make(chan []T, 1)

	emit := func() {
		snapshot, err := query(ctx)
		if err != nil {
			// The read stream contract has no error channel; log and keep
			// the previous snapshot visible to the consumer.
			s.logger.ErrorContext(ctx, "failed to load watch snapshot",
				slog.String("scope", scope), slog.Any("error", err))
			return
		}
		// Latest-wins: drop a pending unread snapshot before sending.
		select {
		case <-out:
		default:
		}
		out <- snapshot
	}

	go func() {
		defer cancel()
		defer close(out)

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				emit()
			}
		}
	}()

	return out
}

// subscribe registers a change-signal channel for a scope. The returned
// cancel func removes the registration.
func (s *Store) subscribe(scope string) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan struct{}, 1)
	if s.subs[scope] == nil {
		s.subs[scope] = map[int]chan struct{}{}
	}
	s.subs[scope][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[scope], id)
		if len(s.subs[scope]) == 0 {
			delete(s.subs, scope)
		}
	}
	return ch, cancel
}

// notify wakes every subscriber of the given scopes. Signals coalesce: a
// subscriber that has not consumed the previous signal gets no second one.
func (s *Store) notify(scopes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, scope := range scopes {
		for _, ch := range s.subs[scope] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// notifyAll wakes the city scope plus every subscribed location scope. Used
// after a full-dataset replace, which may touch any city.
func (s *Store) notifyAll() {
	s.mu.Lock()
	scopes := make([]string, 0, len(s.subs))
	for scope := range s.subs {
		if scope == cityScope || strings.HasPrefix(scope, "locations:") {
			scopes = append(scopes, scope)
		}
	}
	s.mu.Unlock()
	s.notify(scopes...)
}
