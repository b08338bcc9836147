package models

import "time"

// Item is an article listed by a seller
type Item struct {
	ID             int64
	Slug           string
	Title          string
	Description    string
	Image          string // empty when none was supplied or generated
	UserID         int64
	Seller         User
	TagList        []string
	FavoritesCount int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ItemRecord is the public representation of an item
type ItemRecord struct {
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Description    string    `json:"description"`
	Image          string    `json:"image"`
	TagList        []string  `json:"tagList"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Seller         Profile   `json:"seller"`
	Favorited      bool      `json:"favorited"`
	FavoritesCount int       `json:"favoritesCount"`
}

// ItemInput is the request body for creating an item
type ItemInput struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Image       string   `json:"image,omitempty"`
	TagList     []string `json:"tagList,omitempty" validate:"omitempty,dive,required"`
}

// ItemUpdate is the request body for updating an item. Nil fields are left
// untouched.
type ItemUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Image       *string  `json:"image,omitempty"`
	TagList     []string `json:"tagList,omitempty" validate:"omitempty,dive,required"`
}

// ItemRequest wraps ItemInput as sent by clients: {"item": {...}}
type ItemRequest struct {
	Item ItemInput `json:"item"`
}

// ItemUpdateRequest wraps ItemUpdate: {"item": {...}}
type ItemUpdateRequest struct {
	Item ItemUpdate `json:"item"`
}

// ItemResponse wraps a single record: {"item": {...}}
type ItemResponse struct {
	Item ItemRecord `json:"item"`
}

// ItemsResponse is a page of records plus the total match count
type ItemsResponse struct {
	Items      []ItemRecord `json:"items"`
	ItemsCount int          `json:"items_count"`
}

// ListParams holds the optional filters and pagination of an item listing
type ListParams struct {
	Tag       string
	Seller    string
	Favorited string
	Offset    int
	Limit     *int // nil means the default
}

// TagsResponse lists the tag names in use
type TagsResponse struct {
	Tags []string `json:"tags"`
}
