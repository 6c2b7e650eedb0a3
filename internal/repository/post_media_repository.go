package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"postbridge/internal/models"
)

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, postID int64, item *models.MediaItem, displayOrder int) error
	ListByPostID(ctx context.Context, postID int64) ([]models.MediaItem, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, postID int64, item *models.MediaItem, displayOrder int) error {
	query := `
		INSERT INTO post_media (post_id, media_id, source_kind, media_type, format, size_bytes, file_url, display_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var err error
	args := []interface{}{postID, item.ID, item.SourceKind, item.MediaType, item.Format, item.SizeBytes, item.URL, displayOrder}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListByPostID returns the post's media in display order.
func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]models.MediaItem, error) {
	query := `SELECT media_id, source_kind, media_type, format, size_bytes, file_url
		FROM post_media WHERE post_id = $1 ORDER BY display_order`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []models.MediaItem
	for rows.Next() {
		var item models.MediaItem
		err := rows.Scan(&item.ID, &item.SourceKind, &item.MediaType, &item.Format, &item.SizeBytes, &item.URL)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
