package storage

import (
	"context"
	"fmt"

	"github.com/meur/anythink/internal/models"
)

// Link pairs a username with a username (follows) or an item slug
// (favorites).
type Link struct {
	From string
	To   string
}

// Dataset is a batch of rows written by Import. Items name their owner in
// Seller.Username; links refer only to users and items of the same batch.
type Dataset struct {
	Users     []models.User
	Follows   []Link
	Items     []models.Item
	Favorites []Link
}

// Import writes d in a single transaction, so a failure leaves the
// database untouched. IDs are set on d's users and items on success.
func (s *Store) Import(ctx context.Context, d *Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	userIDs := make(map[string]int64, len(d.Users))
	for i := range d.Users {
		u := &d.Users[i]
		if err := insertUser(ctx, tx, u); err != nil {
			return fmt.Errorf("user %s: %w", u.Username, err)
		}
		userIDs[u.Username] = u.ID
	}

	for _, l := range d.Follows {
		from, to := userIDs[l.From], userIDs[l.To]
		if from == 0 || to == 0 {
			return fmt.Errorf("follow %s -> %s: unknown user", l.From, l.To)
		}
		if _, err := tx.ExecContext(ctx, followStmt, from, to); err != nil {
			return fmt.Errorf("follow %s -> %s: %w", l.From, l.To, err)
		}
	}

	itemIDs := make(map[string]int64, len(d.Items))
	for i := range d.Items {
		it := &d.Items[i]
		id, ok := userIDs[it.Seller.Username]
		if !ok {
			return fmt.Errorf("item %q: unknown seller %q", it.Slug, it.Seller.Username)
		}
		it.UserID = id
		if err := insertItemTx(ctx, tx, it); err != nil {
			return fmt.Errorf("item %q: %w", it.Slug, err)
		}
		itemIDs[it.Slug] = it.ID
	}

	for _, l := range d.Favorites {
		user, item := userIDs[l.From], itemIDs[l.To]
		if user == 0 || item == 0 {
			return fmt.Errorf("favorite %s -> %s: unknown user or item", l.From, l.To)
		}
		if _, err := tx.ExecContext(ctx, favoriteStmt, user, item); err != nil {
			return fmt.Errorf("favorite %s -> %s: %w", l.From, l.To, err)
		}
	}

	return tx.Commit()
}
