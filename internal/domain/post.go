package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Default values applied when a post is committed.
const (
	DefaultCategory = "news"
	StatusPublished = "published"

	// Provenance tags recorded in Post.Source.
	SourceTelegram = "telegram_bot"
	SourceAPI      = "api"
)

// Post is the persisted feed entry. Created only at commit time, either by
// the bot wizard or by the REST API; afterwards it is mutated only through
// view/like counter increments.
type Post struct {
	// ID is assigned by MongoDB on insert.
	ID primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`

	Title       string `json:"title" bson:"title"`
	Image       string `json:"image" bson:"image"`
	Description string `json:"description" bson:"description"`

	// Link is where readers are sent when they click the title.
	Link string `json:"link" bson:"link"`

	// Category defaults to "news" when the creator does not supply one.
	Category string `json:"category" bson:"category"`

	// CreatedAt is always set server-side at commit; client-supplied values
	// are ignored.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`

	Views  int    `json:"views" bson:"views"`
	Likes  int    `json:"likes" bson:"likes"`
	Status string `json:"status,omitempty" bson:"status,omitempty"`

	// Source records which surface created the post ("telegram_bot" or "api").
	Source string `json:"source,omitempty" bson:"source,omitempty"`
}

// Draft holds the partially collected fields of an in-progress wizard run.
// It is never persisted; a completed draft becomes a Post at commit.
type Draft struct {
	Title       string
	Image       string
	Description string
	Link        string
	Category    string
}

// ValidURL reports whether s looks like a usable http(s) URL. Used for the
// image and link fields.
func ValidURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ValidText reports whether s is non-empty after trimming. Used for the
// title and description fields.
func ValidText(s string) bool {
	return strings.TrimSpace(s) != ""
}
