package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/items"
	"github.com/meur/anythink/internal/models"
	"github.com/meur/anythink/internal/storage"
)

// seedUser is one entry of users.json
type seedUser struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Bio      *string  `json:"bio,omitempty"`
	Image    *string  `json:"image,omitempty"`
	Follows  []string `json:"follows,omitempty"`
}

// seedItem is one entry of items.json
type seedItem struct {
	Slug        string     `json:"slug,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image,omitempty"`
	TagList     []string   `json:"tagList,omitempty"`
	Seller      string     `json:"seller"`
	FavoritedBy []string   `json:"favoritedBy,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

type stats struct {
	Users     int
	Follows   int
	Items     int
	Favorites int
}

func main() {
	dbPath := flag.String("db", "./anythink.db", "SQLite database path")
	seedsDir := flag.String("seeds", "./seeds", "Seeds directory")
	dryRun := flag.Bool("dry-run", false, "Validate seed files without opening the database")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	set, err := load(*seedsDir)
	if err != nil {
		log.Fatalf("Invalid seed files: %v", err)
	}

	st := set.stats()
	if !*dryRun {
		store, err := storage.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		if err := seed(context.Background(), store, set); err != nil {
			log.Fatalf("Seeding failed, nothing was written: %v", err)
		}
	}
	log.WithFields(logrus.Fields{
		"users":     st.Users,
		"follows":   st.Follows,
		"items":     st.Items,
		"favorites": st.Favorites,
		"dry_run":   *dryRun,
	}).Info("Seeding complete")
}

// seedSet is the validated content of a seeds directory.
type seedSet struct {
	users []seedUser
	items []seedItem
}

// load reads users.json and items.json from dir and checks every
// reference between them.
func load(dir string) (*seedSet, error) {
	set := &seedSet{}
	if err := readJSON(filepath.Join(dir, "users.json"), &set.users); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, "items.json"), &set.items); err != nil {
		return nil, err
	}
	if err := check(set.users, set.items); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *seedSet) stats() stats {
	st := stats{Users: len(s.users), Items: len(s.items)}
	for _, u := range s.users {
		st.Follows += len(u.Follows)
	}
	for _, e := range s.items {
		st.Favorites += len(e.FavoritedBy)
	}
	return st
}

// seed hashes passwords, assigns missing slugs and imports the set in one
// transaction.
func seed(ctx context.Context, store *storage.Store, set *seedSet) error {
	var d storage.Dataset
	for _, su := range set.users {
		hash, err := auth.HashPassword(su.Password)
		if err != nil {
			return err
		}
		d.Users = append(d.Users, models.User{Username: su.Username, Email: su.Email, PasswordHash: hash, Bio: su.Bio, Image: su.Image})
		for _, target := range su.Follows {
			d.Follows = append(d.Follows, storage.Link{From: su.Username, To: target})
		}
	}

	for _, e := range set.items {
		it := models.Item{
			Slug:        e.Slug,
			Title:       e.Title,
			Description: e.Description,
			Image:       e.Image,
			TagList:     e.TagList,
			Seller:      models.User{Username: e.Seller},
		}
		if it.Slug == "" {
			it.Slug = items.NewSlug(e.Title)
		}
		if e.CreatedAt != nil {
			it.CreatedAt = e.CreatedAt.UTC()
		}
		d.Items = append(d.Items, it)
		for _, fan := range e.FavoritedBy {
			d.Favorites = append(d.Favorites, storage.Link{From: fan, To: it.Slug})
		}
	}

	return store.Import(ctx, &d)
}

// check verifies every referenced username is declared in users.json.
func check(users []seedUser, entries []seedItem) error {
	known := make(map[string]bool, len(users))
	for _, u := range users {
		if u.Username == "" || u.Email == "" || u.Password == "" {
			return fmt.Errorf("user %q: username, email and password are required", u.Username)
		}
		known[u.Username] = true
	}
	for _, u := range users {
		for _, f := range u.Follows {
			if !known[f] {
				return fmt.Errorf("user %s follows unknown user %q", u.Username, f)
			}
		}
	}
	for _, e := range entries {
		if e.Title == "" || e.Description == "" {
			return fmt.Errorf("item %q: title and description are required", e.Title)
		}
		if !known[e.Seller] {
			return fmt.Errorf("item %q: unknown seller %q", e.Title, e.Seller)
		}
		for _, fan := range e.FavoritedBy {
			if !known[fan] {
				return fmt.Errorf("item %q: favorited by unknown user %q", e.Title, fan)
			}
		}
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
