package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/meur/anythink/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func mustItem(t *testing.T, s *Store, owner *models.User, slug string, created time.Time, tags ...string) *models.Item {
	t.Helper()
	it := &models.Item{
		Slug:        slug,
		Title:       slug,
		Description: "desc " + slug,
		UserID:      owner.ID,
		TagList:     tags,
		CreatedAt:   created,
	}
	if err := s.CreateItem(context.Background(), it); err != nil {
		t.Fatalf("CreateItem(%s): %v", slug, err)
	}
	return it
}

func slugs(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Slug
	}
	return out
}

func TestStore_ListItems_filtersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustItem(t, s, alice, "a1", base, "red", "blue")
	mustItem(t, s, alice, "a2", base.Add(time.Hour), "blue")
	b1 := mustItem(t, s, bob, "b1", base.Add(2*time.Hour), "red")

	if err := s.AddFavorite(ctx, alice.ID, b1.ID); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}

	cases := []struct {
		name      string
		q         ItemQuery
		wantSlugs []string
		wantCount int
	}{
		{"all newest first", ItemQuery{Limit: 100}, []string{"b1", "a2", "a1"}, 3},
		{"ascending", ItemQuery{Limit: 100, Ascending: true}, []string{"a1", "a2", "b1"}, 3},
		{"tag", ItemQuery{Where: []Predicate{TaggedWith("red")}, Limit: 100}, []string{"b1", "a1"}, 2},
		{"seller", ItemQuery{Where: []Predicate{SelleredBy("alice")}, Limit: 100}, []string{"a2", "a1"}, 2},
		{"favorited", ItemQuery{Where: []Predicate{FavoritedBy("alice")}, Limit: 100}, []string{"b1"}, 1},
		{"tag and seller", ItemQuery{Where: []Predicate{TaggedWith("blue"), SelleredBy("alice")}, Limit: 100}, []string{"a2", "a1"}, 2},
		{"unknown seller", ItemQuery{Where: []Predicate{SelleredBy("nobody")}, Limit: 100}, []string{}, 0},
		{"paged", ItemQuery{Limit: 1, Offset: 1}, []string{"a2"}, 3},
		{"offset past end", ItemQuery{Limit: 10, Offset: 10}, []string{}, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			items, count, err := s.ListItems(ctx, c.q)
			if err != nil {
				t.Fatalf("ListItems: %v", err)
			}
			if got := slugs(items); !reflect.DeepEqual(got, c.wantSlugs) {
				t.Errorf("slugs = %v, want %v", got, c.wantSlugs)
			}
			if count != c.wantCount {
				t.Errorf("count = %d, want %d", count, c.wantCount)
			}
		})
	}
}

func TestStore_ListItems_followedBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	carol := mustUser(t, s, "carol")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mustItem(t, s, bob, "b1", base)
	mustItem(t, s, carol, "c1", base.Add(time.Minute))
	mustItem(t, s, alice, "a1", base.Add(2*time.Minute))

	if err := s.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	items, count, err := s.ListItems(ctx, ItemQuery{Where: []Predicate{FollowedBy(alice.ID)}, Limit: 20})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if count != 1 || !reflect.DeepEqual(slugs(items), []string{"b1"}) {
		t.Fatalf("got %v (count %d), want [b1] (count 1)", slugs(items), count)
	}
}

func TestStore_GetItemBySlug_loadsSellerTagsAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	it := mustItem(t, s, alice, "lamp", time.Time{}, "zeta", "alpha", "zeta")

	if err := s.AddFavorite(ctx, bob.ID, it.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFavorite(ctx, bob.ID, it.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetItemBySlug(ctx, "lamp")
	if err != nil {
		t.Fatalf("GetItemBySlug: %v", err)
	}
	if got.Seller.Username != "alice" {
		t.Errorf("seller = %q, want alice", got.Seller.Username)
	}
	if !reflect.DeepEqual(got.TagList, []string{"zeta", "alpha"}) {
		t.Errorf("tags = %v, want [zeta alpha]", got.TagList)
	}
	if got.FavoritesCount != 1 {
		t.Errorf("favorites = %d, want 1", got.FavoritesCount)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestStore_GetItemBySlug_notFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetItemBySlug(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_CreateItem_duplicateSlug(t *testing.T) {
	s := newTestStore(t)
	alice := mustUser(t, s, "alice")
	mustItem(t, s, alice, "dup", time.Time{})

	err := s.CreateItem(context.Background(), &models.Item{Slug: "dup", Title: "t", Description: "d", UserID: alice.ID})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "slug" {
		t.Fatalf("err = %v, want ConflictError on slug", err)
	}
}

func TestStore_UpdateItem_partial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	it := mustItem(t, s, alice, "chair", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "wood")

	title := "Better chair"
	if err := s.UpdateItem(ctx, it.ID, &models.ItemUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	got, err := s.GetItemBySlug(ctx, "chair")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != title || got.Description != "desc chair" {
		t.Errorf("got title %q desc %q", got.Title, got.Description)
	}
	if !reflect.DeepEqual(got.TagList, []string{"wood"}) {
		t.Errorf("tags changed: %v", got.TagList)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", got.UpdatedAt, got.CreatedAt)
	}

	if err := s.UpdateItem(ctx, it.ID, &models.ItemUpdate{TagList: []string{"oak", "brown"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetItemBySlug(ctx, "chair")
	if !reflect.DeepEqual(got.TagList, []string{"oak", "brown"}) {
		t.Errorf("tags = %v, want [oak brown]", got.TagList)
	}

	if err := s.UpdateItem(ctx, 9999, &models.ItemUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing item: err = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteItem_cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	it := mustItem(t, s, alice, "gone", time.Time{}, "tmp")
	if err := s.AddFavorite(ctx, alice.ID, it.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteItem(ctx, it.ID); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}
	if _, err := s.GetItemBySlug(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("item still present: %v", err)
	}
	favs, err := s.FavoritedItemIDs(ctx, alice.ID, []int64{it.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(favs) != 0 {
		t.Errorf("favorites survived delete: %v", favs)
	}
	tags, err := s.PopularTags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Errorf("tags still in use: %v", tags)
	}
	if err := s.DeleteItem(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestStore_PopularTags_orderedByUse(t *testing.T) {
	s := newTestStore(t)
	alice := mustUser(t, s, "alice")
	mustItem(t, s, alice, "i1", time.Time{}, "b", "a")
	mustItem(t, s, alice, "i2", time.Time{}, "b")
	mustItem(t, s, alice, "i3", time.Time{}, "c", "b")

	got, err := s.PopularTags(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"b", "a", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestStore_Users(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")

	err := s.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "username" {
		t.Fatalf("duplicate username: err = %v", err)
	}

	byEmail, err := s.GetUserByEmail(ctx, "bob@example.com")
	if err != nil || byEmail.ID != bob.ID {
		t.Fatalf("GetUserByEmail = %v, %v", byEmail, err)
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUserByUsername(nobody) err = %v", err)
	}

	bio := "hello"
	alice.Bio = &bio
	if err := s.UpdateUser(ctx, alice); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	got, err := s.GetUserByID(ctx, alice.ID)
	if err != nil || got.Bio == nil || *got.Bio != "hello" {
		t.Fatalf("GetUserByID after update = %+v, %v", got, err)
	}

	if err := s.Follow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	followed, err := s.FollowedUserIDs(ctx, alice.ID, []int64{alice.ID, bob.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !followed[bob.ID] || followed[alice.ID] {
		t.Fatalf("followed = %v", followed)
	}
	if err := s.Unfollow(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	followed, _ = s.FollowedUserIDs(ctx, alice.ID, []int64{bob.ID})
	if followed[bob.ID] {
		t.Fatal("still following after Unfollow")
	}
}

func TestStore_BulkCreateItems_rollsBackOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice")

	batch := make([]models.Item, 0, 3)
	for i := 0; i < 2; i++ {
		batch = append(batch, models.Item{Slug: fmt.Sprintf("bulk-%d", i), Title: "t", Description: "d", UserID: alice.ID})
	}
	batch = append(batch, models.Item{Slug: "bulk-0", Title: "t", Description: "d", UserID: alice.ID})

	if err := s.BulkCreateItems(ctx, batch); err == nil {
		t.Fatal("expected conflict error")
	}
	_, count, err := s.ListItems(ctx, ItemQuery{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("count = %d after rolled back batch, want 0", count)
	}
}

func importDataset() *Dataset {
	return &Dataset{
		Users: []models.User{
			{Username: "alice", Email: "alice@example.com", PasswordHash: "x"},
			{Username: "bob", Email: "bob@example.com", PasswordHash: "x"},
		},
		Follows: []Link{{From: "alice", To: "bob"}},
		Items: []models.Item{
			{Slug: "lamp", Title: "Lamp", Description: "d", Seller: models.User{Username: "bob"}, TagList: []string{"home"}},
		},
		Favorites: []Link{{From: "alice", To: "lamp"}},
	}
}

func TestStore_Import(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := importDataset()
	if err := s.Import(ctx, d); err != nil {
		t.Fatalf("Import: %v", err)
	}
	alice, bob := d.Users[0], d.Users[1]
	if alice.ID == 0 || d.Items[0].UserID != bob.ID {
		t.Fatalf("ids not assigned: %+v %+v", d.Users, d.Items)
	}

	items, count, err := s.ListItems(ctx, ItemQuery{Where: []Predicate{FollowedBy(alice.ID), FavoritedBy("alice")}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 || items[0].Slug != "lamp" || !reflect.DeepEqual(items[0].TagList, []string{"home"}) {
		t.Fatalf("items = %+v (count %d)", items, count)
	}
}

func TestStore_Import_rollsBackOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUser(t, s, "bob")

	err := s.Import(ctx, importDataset())
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if _, err := s.GetUserByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("alice after failed import: %v", err)
	}
	if _, count, _ := s.ListItems(ctx, ItemQuery{Limit: 10}); count != 0 {
		t.Fatalf("count = %d after failed import, want 0", count)
	}
}
