package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meur/anythink/internal/models"
)

const favoriteStmt = "INSERT OR IGNORE INTO favorites (user_id, item_id) VALUES (?, ?)"

const itemSelect = `
	SELECT i.id, i.slug, i.title, i.description, i.image, i.user_id, i.created_at, i.updated_at,
		u.id, u.username, u.email, u.bio, u.image,
		(SELECT COUNT(*) FROM favorites f WHERE f.item_id = i.id)
	FROM items i
	JOIN users u ON u.id = i.user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		item       models.Item
		bio, image sql.NullString
	)
	err := row.Scan(&item.ID, &item.Slug, &item.Title, &item.Description, &item.Image,
		&item.UserID, &item.CreatedAt, &item.UpdatedAt,
		&item.Seller.ID, &item.Seller.Username, &item.Seller.Email, &bio, &image,
		&item.FavoritesCount)
	if err != nil {
		return item, err
	}
	item.Seller.Bio = stringPtr(bio)
	item.Seller.Image = stringPtr(image)
	return item, nil
}

// ListItems returns one page of items matching q together with the total
// number of matches ignoring pagination.
func (s *Store) ListItems(ctx context.Context, q ItemQuery) ([]models.Item, int, error) {
	where, args := whereClause(q.Where)

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items i"+where, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	limit := q.Limit
	if limit < 0 {
		limit = -1
	}
	query := fmt.Sprintf("%s%s ORDER BY i.created_at %s, i.id %s LIMIT ? OFFSET ?", itemSelect, where, dir, dir)
	pageArgs := append(append([]interface{}{}, args...), limit, q.Offset)

	items, err := s.queryItems(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...interface{}) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItemBySlug loads a single item with its seller and tags.
func (s *Store) GetItemBySlug(ctx context.Context, slug string) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, itemSelect+" WHERE i.slug = ?", slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %q: %w", slug, err)
	}

	items := []models.Item{item}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// attachTags fills TagList on every item in place, preserving insertion order.
func (s *Store) attachTags(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].TagList = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT it.item_id, t.name
		FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id IN (`+placeholders(len(ids))+`)
		ORDER BY it.item_id, it.position
	`, int64Args(ids)...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[int64][]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("scan tag: %w", err)
		}
		tags[id] = append(tags[id], name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	for i := range items {
		if t, ok := tags[items[i].ID]; ok {
			items[i].TagList = t
		}
	}
	return nil
}

// CreateItem inserts item and its tags. item.ID is set on success.
func (s *Store) CreateItem(ctx context.Context, item *models.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertItemTx(ctx, tx, item); err != nil {
		return err
	}
	return tx.Commit()
}

// BulkCreateItems inserts items in a single transaction.
func (s *Store) BulkCreateItems(ctx context.Context, items []models.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range items {
		if err := insertItemTx(ctx, tx, &items[i]); err != nil {
			return fmt.Errorf("item %q: %w", items[i].Slug, err)
		}
	}
	return tx.Commit()
}

func insertItemTx(ctx context.Context, tx *sql.Tx, item *models.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO items (slug, title, description, image, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.Slug, item.Title, item.Description, item.Image, item.UserID, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert item: %w", err)
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	item.TagList = dedupeTags(item.TagList)
	return setTagsTx(ctx, tx, item.ID, item.TagList)
}

// UpdateItem applies the non-nil fields of update to the item with the
// given id. A non-nil TagList replaces the stored tags.
func (s *Store) UpdateItem(ctx context.Context, id int64, update *models.ItemUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, *update.Image)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	args = append(args, id)
	query := fmt.Sprintf("UPDATE items SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if update.TagList != nil {
		if err := setTagsTx(ctx, tx, id, dedupeTags(update.TagList)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteItem removes the item; its tags links and favorites cascade.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func setTagsTx(ctx context.Context, tx *sql.Tx, itemID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM item_tags WHERE item_id = ?", itemID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for pos, name := range tags {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("insert tag %q: %w", name, err)
		}
		var tagID int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&tagID); err != nil {
			return fmt.Errorf("lookup tag %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO item_tags (item_id, tag_id, position) VALUES (?, ?, ?)",
			itemID, tagID, pos); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AddFavorite marks itemID as a favorite of userID. Repeating it is a no-op.
func (s *Store) AddFavorite(ctx context.Context, userID, itemID int64) error {
	_, err := s.db.ExecContext(ctx, favoriteStmt, userID, itemID)
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite clears the favorite mark, if any.
func (s *Store) RemoveFavorite(ctx context.Context, userID, itemID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM favorites WHERE user_id = ? AND item_id = ?", userID, itemID)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// FavoritedItemIDs reports which of itemIDs userID has favorited.
func (s *Store) FavoritedItemIDs(ctx context.Context, userID int64, itemIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(itemIDs) == 0 {
		return out, nil
	}
	args := append([]interface{}{userID}, int64Args(itemIDs)...)
	rows, err := s.db.QueryContext(ctx,
		"SELECT item_id FROM favorites WHERE user_id = ? AND item_id IN ("+placeholders(len(itemIDs))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// PopularTags returns every tag in use, most used first.
func (s *Store) PopularTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM tags t
		JOIN item_tags it ON it.tag_id = t.id
		GROUP BY t.id, t.name
		ORDER BY COUNT(*) DESC, t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}
