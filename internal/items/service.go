// Package items lists, creates, shows, updates and destroys items on
// behalf of an optional requester.
package items

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meur/anythink/internal/apperror"
	"github.com/meur/anythink/internal/events"
	"github.com/meur/anythink/internal/imagegen"
	"github.com/meur/anythink/internal/models"
	"github.com/meur/anythink/internal/storage"
	"github.com/meur/anythink/internal/validation"
)

const (
	DefaultListLimit = 100
	DefaultFeedLimit = 20

	maxSlugAttempts = 5
)

// Repository is the item persistence the service depends on.
type Repository interface {
	ListItems(ctx context.Context, q storage.ItemQuery) ([]models.Item, int, error)
	GetItemBySlug(ctx context.Context, slug string) (*models.Item, error)
	CreateItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, id int64, update *models.ItemUpdate) error
	DeleteItem(ctx context.Context, id int64) error
	AddFavorite(ctx context.Context, userID, itemID int64) error
	RemoveFavorite(ctx context.Context, userID, itemID int64) error
	FavoritedItemIDs(ctx context.Context, userID int64, itemIDs []int64) (map[int64]bool, error)
	FollowedUserIDs(ctx context.Context, followerID int64, userIDs []int64) (map[int64]bool, error)
	PopularTags(ctx context.Context) ([]string, error)
}

// Emitter accepts domain events. Emit must not block.
type Emitter interface {
	Emit(name string, payload interface{})
}

// Service implements the item operations. Every operation receives the
// requester explicitly; nil means anonymous.
type Service struct {
	repo         Repository
	images       imagegen.Generator
	events       Emitter
	imageTimeout time.Duration
	log          *logrus.Logger
}

func NewService(repo Repository, images imagegen.Generator, events Emitter, imageTimeout time.Duration, log *logrus.Logger) *Service {
	return &Service{
		repo:         repo,
		images:       images,
		events:       events,
		imageTimeout: imageTimeout,
		log:          log,
	}
}

// List returns a page of items, newest first, filtered by the optional
// tag, seller and favorited parameters.
func (s *Service) List(ctx context.Context, requester *models.User, p models.ListParams) (*models.ItemsResponse, error) {
	var preds []storage.Predicate
	if p.Tag != "" {
		preds = append(preds, storage.TaggedWith(p.Tag))
	}
	if p.Seller != "" {
		preds = append(preds, storage.SelleredBy(p.Seller))
	}
	if p.Favorited != "" {
		preds = append(preds, storage.FavoritedBy(p.Favorited))
	}

	offset, limit := page(p.Offset, p.Limit, DefaultListLimit)
	return s.query(ctx, requester, storage.ItemQuery{Where: preds, Offset: offset, Limit: limit})
}

// Feed returns items sold by users the requester follows, oldest first.
func (s *Service) Feed(ctx context.Context, requester *models.User, offset int, limit *int) (*models.ItemsResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	offset, n := page(offset, limit, DefaultFeedLimit)
	return s.query(ctx, requester, storage.ItemQuery{
		Where:     []storage.Predicate{storage.FollowedBy(requester.ID)},
		Ascending: true,
		Offset:    offset,
		Limit:     n,
	})
}

func (s *Service) query(ctx context.Context, requester *models.User, q storage.ItemQuery) (*models.ItemsResponse, error) {
	items, count, err := s.repo.ListItems(ctx, q)
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to list items", err)
	}
	records, err := s.records(ctx, requester, items)
	if err != nil {
		return nil, err
	}
	return &models.ItemsResponse{Items: records, ItemsCount: count}, nil
}

// page applies defaults: a negative offset becomes 0 and an absent or
// negative limit becomes def. An explicit zero limit is kept.
func page(offset int, limit *int, def int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit == nil || *limit < 0 {
		return offset, def
	}
	return offset, *limit
}

// Create stores a new item owned by requester. A missing image is
// generated from the title and description on a best-effort basis.
func (s *Service) Create(ctx context.Context, requester *models.User, in models.ItemInput) (*models.ItemResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.TagList = trimTags(in.TagList)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	image := strings.TrimSpace(in.Image)
	if image == "" {
		image = s.generateImage(ctx, in.Title+" "+in.Description)
	}

	item := &models.Item{
		Title:       in.Title,
		Description: in.Description,
		Image:       image,
		UserID:      requester.ID,
		TagList:     in.TagList,
	}
	if err := s.insertWithUniqueSlug(ctx, item); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"slug": item.Slug, "seller": requester.Username}).Info("item created")
	s.events.Emit(events.ItemCreated, map[string]interface{}{"item": in})

	return s.reload(ctx, requester, item.Slug)
}

func (s *Service) insertWithUniqueSlug(ctx context.Context, item *models.Item) error {
	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		item.Slug = NewSlug(item.Title)
		err = s.repo.CreateItem(ctx, item)
		var conflict *storage.ConflictError
		if errors.As(err, &conflict) && conflict.Field == "slug" {
			s.log.WithField("slug", item.Slug).Debug("slug collision, retrying")
			continue
		}
		if err != nil {
			return apperror.NewDatabaseError("failed to create item", err)
		}
		return nil
	}
	return apperror.NewInternalError("could not allocate a unique slug", err)
}

func (s *Service) generateImage(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, s.imageTimeout)
	defer cancel()

	url, err := s.images.Generate(ctx, prompt)
	if errors.Is(err, imagegen.ErrDisabled) {
		return ""
	}
	if err != nil {
		s.log.WithError(err).Warn("image generation failed, creating item without image")
		return ""
	}
	return url
}

// Show returns the item identified by slug.
func (s *Service) Show(ctx context.Context, requester *models.User, slug string) (*models.ItemResponse, error) {
	item, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, requester, item)
}

// Update applies a partial update. Only the owner may update an item.
func (s *Service) Update(ctx context.Context, requester *models.User, slug string, upd models.ItemUpdate) (*models.ItemResponse, error) {
	item, err := s.owned(ctx, requester, slug)
	if err != nil {
		return nil, err
	}

	fields := make(map[string][]string)
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			fields["title"] = []string{"can't be blank"}
		}
		upd.Title = &t
	}
	if upd.Description != nil {
		d := strings.TrimSpace(*upd.Description)
		if d == "" {
			fields["description"] = []string{"can't be blank"}
		}
		upd.Description = &d
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidationError(fields)
	}
	if upd.TagList != nil {
		upd.TagList = trimTags(upd.TagList)
	}
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateItem(ctx, item.ID, &upd); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound()
		}
		return nil, apperror.NewDatabaseError("failed to update item", err)
	}

	s.log.WithFields(logrus.Fields{"slug": slug, "seller": requester.Username}).Info("item updated")
	s.events.Emit(events.ItemUpdated, map[string]interface{}{"slug": slug, "item": upd})

	return s.reload(ctx, requester, slug)
}

// Destroy deletes the item. Only the owner may delete it.
func (s *Service) Destroy(ctx context.Context, requester *models.User, slug string) error {
	item, err := s.owned(ctx, requester, slug)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound()
		}
		return apperror.NewDatabaseError("failed to delete item", err)
	}

	s.log.WithFields(logrus.Fields{"slug": slug, "seller": requester.Username}).Info("item deleted")
	s.events.Emit(events.ItemDeleted, map[string]interface{}{"slug": slug})
	return nil
}

// Favorite marks the item as a favorite of requester.
func (s *Service) Favorite(ctx context.Context, requester *models.User, slug string) (*models.ItemResponse, error) {
	return s.toggleFavorite(ctx, requester, slug, s.repo.AddFavorite)
}

// Unfavorite removes the favorite mark.
func (s *Service) Unfavorite(ctx context.Context, requester *models.User, slug string) (*models.ItemResponse, error) {
	return s.toggleFavorite(ctx, requester, slug, s.repo.RemoveFavorite)
}

func (s *Service) toggleFavorite(ctx context.Context, requester *models.User, slug string,
	apply func(ctx context.Context, userID, itemID int64) error) (*models.ItemResponse, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	item, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := apply(ctx, requester.ID, item.ID); err != nil {
		return nil, apperror.NewDatabaseError("failed to update favorite", err)
	}
	return s.reload(ctx, requester, slug)
}

// Tags lists the tags in use, most popular first.
func (s *Service) Tags(ctx context.Context) (*models.TagsResponse, error) {
	tags, err := s.repo.PopularTags(ctx)
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to load tags", err)
	}
	return &models.TagsResponse{Tags: tags}, nil
}

func (s *Service) load(ctx context.Context, slug string) (*models.Item, error) {
	item, err := s.repo.GetItemBySlug(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound()
	}
	if err != nil {
		return nil, apperror.NewDatabaseError("failed to load item", err)
	}
	return item, nil
}

// owned loads the item and checks that requester owns it.
func (s *Service) owned(ctx context.Context, requester *models.User, slug string) (*models.Item, error) {
	if requester == nil {
		return nil, apperror.NewUnauthorizedError("authentication required", nil)
	}
	item, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	if item.UserID != requester.ID {
		s.log.WithFields(logrus.Fields{"slug": slug, "requester": requester.Username}).Warn("rejected change to item not owned by requester")
		return nil, apperror.NewForbiddenError("item", "not owned by user")
	}
	return item, nil
}

func (s *Service) reload(ctx context.Context, requester *models.User, slug string) (*models.ItemResponse, error) {
	item, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, requester, item)
}

func (s *Service) single(ctx context.Context, requester *models.User, item *models.Item) (*models.ItemResponse, error) {
	records, err := s.records(ctx, requester, []models.Item{*item})
	if err != nil {
		return nil, err
	}
	return &models.ItemResponse{Item: records[0]}, nil
}

// records shapes items for requester, resolving favorited and following
// in one query each.
func (s *Service) records(ctx context.Context, requester *models.User, items []models.Item) ([]models.ItemRecord, error) {
	favorited := map[int64]bool{}
	following := map[int64]bool{}
	if requester != nil && len(items) > 0 {
		itemIDs := make([]int64, 0, len(items))
		sellerIDs := make([]int64, 0, len(items))
		for _, it := range items {
			itemIDs = append(itemIDs, it.ID)
			sellerIDs = append(sellerIDs, it.UserID)
		}
		var err error
		if favorited, err = s.repo.FavoritedItemIDs(ctx, requester.ID, itemIDs); err != nil {
			return nil, apperror.NewDatabaseError("failed to load favorites", err)
		}
		if following, err = s.repo.FollowedUserIDs(ctx, requester.ID, sellerIDs); err != nil {
			return nil, apperror.NewDatabaseError("failed to load follows", err)
		}
	}

	records := make([]models.ItemRecord, 0, len(items))
	for i := range items {
		it := &items[i]
		tags := it.TagList
		if tags == nil {
			tags = []string{}
		}
		records = append(records, models.ItemRecord{
			Title:          it.Title,
			Slug:           it.Slug,
			Description:    it.Description,
			Image:          it.Image,
			TagList:        tags,
			CreatedAt:      it.CreatedAt,
			UpdatedAt:      it.UpdatedAt,
			Seller:         it.Seller.Profile(following[it.UserID]),
			Favorited:      favorited[it.ID],
			FavoritesCount: it.FavoritesCount,
		})
	}
	return records, nil
}

func trimTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = strings.TrimSpace(t)
	}
	return out
}

func notFound() error {
	return apperror.NewNotFoundError("item", "not found")
}
