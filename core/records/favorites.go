package records

import (
	"context"
	"log/slog"

	"github.com/m3rciful/kitwatch/core/logger"
)

// AddFavorite subscribes user to reminders for id. An unknown id gets an empty
// placeholder record. Repeated calls are no-ops reporting FavoriteExists.
func (s *Store) AddFavorite(ctx context.Context, id string, user UserID) (FavoriteResult, error) {
	result := FavoriteExists
	err := s.Update(ctx, func(rs Records) (bool, error) {
		rec, ok := rs[id]
		if !ok {
			rec = Record{ID: id}
		}
		if rec.HasFavorite(user) {
			return false, nil
		}
		rec.FavoritedBy = append(rec.FavoritedBy, user)
		rs[id] = rec
		result = FavoriteAdded
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	logger.LogEvent(ctx, logger.Store, slog.LevelInfo, "store.favorite",
		slog.String("status", "ok"),
		slog.String("record_id", id),
		slog.String("outcome", "ok"),
		slog.String("cause", result.String()),
	)
	return result, nil
}

// FavoritesOf lists the records user favorited, ordered by id.
func (s *Store) FavoritesOf(ctx context.Context, user UserID) ([]Record, error) {
	rs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range rs.Sorted() {
		if rec.HasFavorite(user) {
			out = append(out, rec)
		}
	}
	return out, nil
}
