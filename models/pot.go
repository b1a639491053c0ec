package models

import "time"

type Pot struct {
	ID            string    `bson:"_id" json:"id"`
	Title         string    `bson:"title" json:"title"`
	Slug          string    `bson:"slug" json:"slug"`
	StoryText     string    `bson:"story_text,omitempty" json:"story_text,omitempty"`
	CoverImageURL string    `bson:"cover_image_url,omitempty" json:"cover_image_url,omitempty"`
	GoalAmount    *int64    `bson:"goal_amount,omitempty" json:"goal_amount,omitempty"`
	IsActive      bool      `bson:"is_active" json:"is_active"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// PotItem is display-only metadata listed under a pot.
type PotItem struct {
	ID          string    `bson:"_id" json:"id"`
	PotID       string    `bson:"pot_id" json:"pot_id"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	ImageURL    string    `bson:"image_url,omitempty" json:"image_url,omitempty"`
	SortOrder   int       `bson:"sort_order" json:"sort_order"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}
