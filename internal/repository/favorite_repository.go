package repository

import (
	"context"
	"database/sql"
)

// FavoriteRepo stores the movies a user marked as favorite.  Movies are
// referenced by their external id only.
type FavoriteRepo struct {
	db *sql.DB
}

func NewFavoriteRepo(db *sql.DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

// Toggle removes movieID from the user's favorites when present and adds
// it otherwise.  It reports whether the movie is a favorite afterwards.
func (r *FavoriteRepo) Toggle(ctx context.Context, userID uint64, movieID string) (bool, error) {
	c := conn(ctx, r.db)
	res, err := c.ExecContext(ctx,
		"DELETE FROM user_favorites WHERE user_id = ? AND movie_id = ?", userID, movieID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n > 0 {
		return false, nil
	}
	// a concurrent toggle may have inserted it already
	if _, err := c.ExecContext(ctx,
		"INSERT IGNORE INTO user_favorites (user_id, movie_id) VALUES (?, ?)", userID, movieID); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the user's favorite movie ids, oldest first.
func (r *FavoriteRepo) List(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		"SELECT movie_id FROM user_favorites WHERE user_id = ? ORDER BY created_at, movie_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
