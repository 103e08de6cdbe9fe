package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlpinDale/waifu/src/models"
)

const pgUniqueViolation = "23505"

// PostgresIndex is the pgx-backed metadata index.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresIndex creates a metadata index over the given pool.
func NewPostgresIndex(pool *pgxpool.Pool) *PostgresIndex {
	return &PostgresIndex{pool: pool}
}

// Query translates a normalized filter spec into one SQL query. Tag matching
// requires every requested tag (subset semantics via HAVING COUNT); dimension
// bounds are inclusive. Results are ordered by filename so repeated queries
// for the same filters produce the same candidate sequence.
func (idx *PostgresIndex) Query(ctx context.Context, filters *models.Filters) ([]string, error) {
	var (
		sb     strings.Builder
		conds  []string
		args   []any
		argNum = func() string { return fmt.Sprintf("$%d", len(args)) }
	)

	sb.WriteString("SELECT i.filename FROM images i")
	if len(filters.Tags) > 0 {
		sb.WriteString(" JOIN image_tags it ON i.filename = it.filename JOIN tags t ON it.tag_id = t.id")
		args = append(args, filters.Tags)
		conds = append(conds, "t.name = ANY("+argNum()+")")
	}

	for _, dim := range []struct {
		col string
		r   *models.Range
	}{{"i.width", filters.Width}, {"i.height", filters.Height}, {"i.size_bytes", filters.Size}} {
		if dim.r == nil {
			continue
		}
		if dim.r.Min > 0 {
			args = append(args, dim.r.Min)
			conds = append(conds, dim.col+" >= "+argNum())
		}
		if dim.r.Max != models.Unbounded {
			args = append(args, dim.r.Max)
			conds = append(conds, dim.col+" <= "+argNum())
		}
	}

	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	if len(filters.Tags) > 0 {
		args = append(args, len(filters.Tags))
		sb.WriteString(" GROUP BY i.filename HAVING COUNT(DISTINCT t.name) = " + argNum())
	}
	sb.WriteString(" ORDER BY i.filename")

	rows, err := idx.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var filenames []string
	for rows.Next() {
		var fn string
		if err := rows.Scan(&fn); err != nil {
			return nil, fmt.Errorf("failed to scan filename: %w", err)
		}
		filenames = append(filenames, fn)
	}
	return filenames, rows.Err()
}

// Get returns one record by filename, tags included.
func (idx *PostgresIndex) Get(ctx context.Context, filename string) (*models.ImageRecord, error) {
	rec := &models.ImageRecord{}
	err := idx.pool.QueryRow(ctx,
		`SELECT filename, hash, format, width, height, size_bytes, created_at, modified_at
		 FROM images WHERE filename = $1`,
		filename,
	).Scan(&rec.Filename, &rec.Hash, &rec.Format, &rec.Width, &rec.Height,
		&rec.SizeBytes, &rec.CreatedAt, &rec.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	tags, err := idx.imageTags(ctx, filename)
	if err != nil {
		return nil, err
	}
	rec.Tags = tags
	return rec, nil
}

// Insert stores a new record together with its tags in one transaction.
func (idx *PostgresIndex) Insert(ctx context.Context, rec *models.ImageRecord) error {
	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO images (filename, hash, format, width, height, size_bytes, created_at, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Filename, rec.Hash, rec.Format, rec.Width, rec.Height,
		rec.SizeBytes, rec.CreatedAt, rec.ModifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert image: %w", err)
	}

	if err := addTagsTx(ctx, tx, rec.Filename, rec.Tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes a record, its tag associations, and any tags left without
// images.
func (idx *PostgresIndex) Delete(ctx context.Context, filename string) error {
	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, "DELETE FROM images WHERE filename = $1", filename)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		"DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM image_tags)")
	if err != nil {
		return fmt.Errorf("failed to prune orphan tags: %w", err)
	}
	return tx.Commit(ctx)
}

// AddTags associates tags with an image, creating tag rows as needed.
func (idx *PostgresIndex) AddTags(ctx context.Context, filename string, tags []string) error {
	if exists, err := idx.exists(ctx, filename); err != nil {
		return err
	} else if !exists {
		return ErrNotFound
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := addTagsTx(ctx, tx, filename, tags); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RemoveTags drops tag associations; tags not on the image are ignored.
func (idx *PostgresIndex) RemoveTags(ctx context.Context, filename string, tags []string) error {
	if exists, err := idx.exists(ctx, filename); err != nil {
		return err
	} else if !exists {
		return ErrNotFound
	}

	_, err := idx.pool.Exec(ctx,
		`DELETE FROM image_tags WHERE filename = $1
		 AND tag_id IN (SELECT id FROM tags WHERE name = ANY($2))`,
		filename, models.NormalizeTags(tags),
	)
	if err != nil {
		return fmt.Errorf("failed to remove tags: %w", err)
	}
	return nil
}

// AllTags returns every tag with the number of images carrying it.
func (idx *PostgresIndex) AllTags(ctx context.Context) (map[string]int, error) {
	rows, err := idx.pool.Query(ctx,
		`SELECT t.name, COUNT(it.filename)
		 FROM tags t LEFT JOIN image_tags it ON t.id = it.tag_id
		 GROUP BY t.name ORDER BY t.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

func (idx *PostgresIndex) exists(ctx context.Context, filename string) (bool, error) {
	var ok bool
	err := idx.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM images WHERE filename = $1)", filename,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check image existence: %w", err)
	}
	return ok, nil
}

func (idx *PostgresIndex) imageTags(ctx context.Context, filename string) ([]string, error) {
	rows, err := idx.pool.Query(ctx,
		`SELECT t.name FROM tags t
		 JOIN image_tags it ON t.id = it.tag_id
		 WHERE it.filename = $1 ORDER BY t.name`,
		filename,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query image tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func addTagsTx(ctx context.Context, tx pgx.Tx, filename string, tags []string) error {
	for _, tag := range models.NormalizeTags(tags) {
		var tagID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO tags (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			tag,
		).Scan(&tagID)
		if err != nil {
			return fmt.Errorf("failed to upsert tag %q: %w", tag, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO image_tags (filename, tag_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			filename, tagID,
		)
		if err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", tag, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
