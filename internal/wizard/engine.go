package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dramadesk/internal/domain"
	"dramadesk/internal/intake"
	"dramadesk/internal/session"
	"dramadesk/internal/storage"
)

// User-facing wizard messages. Every transition produces exactly one of
// these; the dispatcher delivers it.
const (
	msgStart = "📝 *Create New Post*\n\nStep 1/4: Send me the *post title*:"

	msgTitleSaved = "✅ Title saved!\n\n" +
		"Step 2/4: Now *send me a photo* for this post,\n" +
		"or paste an image URL (https://...)."

	msgImageSaved = "✅ Image saved!\n\nStep 3/4: Send me the *description*:"

	msgDescriptionSaved = "✅ Description saved!\n\n" +
		"Step 4/4: Send me the *redirect link* (https://...):\n" +
		"(Where readers go when they click the title)"

	msgNeedTitle = "Please send the *post title* as plain text."

	msgNeedImage = "❌ That doesn't look like an image.\n" +
		"Send a photo, or paste a URL starting with http:// or https://."

	msgNeedDescription = "Please send the *description* as plain text."

	msgNeedLink = "❌ That doesn't look like a link.\n" +
		"Send a URL starting with http:// or https://."

	msgUploadFailed = "❌ Failed to upload the image.\n" +
		"The draft was discarded — send /addpost to start over."

	msgSaveFailed = "❌ Error saving post to database — the post was *not* saved.\n" +
		"Send /addpost to try again."

	msgExpired = "⏰ Your draft expired after 10 minutes of inactivity.\n" +
		"Send /addpost to start again."

	msgCancelled  = "🗑 Draft discarded."
	msgNoDraft    = "Nothing to cancel — no post is in progress."
	msgDoneFormat = "🎉 *Post Created Successfully!*\n\n" +
		"*Title:* %s\n*Link:* %s\n\nYour post is now live on the website!"
)

// Event is one inbound chat message, already stripped to what the wizard
// cares about: its text, and the file IDs of an attached photo in
// resolution-ascending order.
type Event struct {
	Text         string
	PhotoFileIDs []string
}

// Engine drives the per-chat post-creation state machine:
//
//	AwaitingTitle → AwaitingImage → AwaitingDescription → AwaitingLink → commit
//
// Steps only ever advance forward or end in session deletion (commit,
// cancel, expiry, upload failure). Each handled event returns exactly one
// reply for the dispatcher to deliver.
type Engine struct {
	sessions *session.Store
	images   intake.Resolver
	posts    storage.PostRepository
	log      logrus.FieldLogger
}

// NewEngine creates a wizard engine.
func NewEngine(sessions *session.Store, images intake.Resolver, posts storage.PostRepository, logger logrus.FieldLogger) *Engine {
	return &Engine{
		sessions: sessions,
		images:   images,
		posts:    posts,
		log:      logger.WithField("component", "wizard"),
	}
}

// Start begins a fresh wizard for chatID, overwriting any prior session,
// and returns the first prompt. Wizards start only through this explicit
// call — never implicitly from free-form text.
func (e *Engine) Start(chatID int64) string {
	e.sessions.Put(chatID, session.Session{
		ChatID:       chatID,
		Step:         session.AwaitingTitle,
		LastActivity: time.Now(),
	})
	e.log.WithField("chat_id", chatID).Info("Wizard started")
	return msgStart
}

// Cancel discards any in-progress draft for chatID.
func (e *Engine) Cancel(chatID int64) string {
	if _, ok := e.sessions.Get(chatID); !ok {
		return msgNoDraft
	}
	e.sessions.Delete(chatID)
	e.log.WithField("chat_id", chatID).Info("Wizard cancelled")
	return msgCancelled
}

// Handle feeds one inbound event to the wizard. It returns the reply to
// deliver and whether the event was consumed; handled is false only when no
// session exists for chatID, in which case the dispatcher ignores the event.
func (e *Engine) Handle(ctx context.Context, chatID int64, ev Event) (reply string, handled bool) {
	s, ok := e.sessions.Get(chatID)
	if !ok {
		return "", false
	}

	log := e.log.WithFields(logrus.Fields{
		"chat_id": chatID,
		"step":    s.Step.String(),
	})

	// An expired session is treated as absent: deleted, user told to
	// restart, event not applied.
	if s.Expired(time.Now()) {
		e.sessions.Delete(chatID)
		log.Info("Session expired")
		return msgExpired, true
	}

	switch s.Step {
	case session.AwaitingTitle:
		if !domain.ValidText(ev.Text) {
			return msgNeedTitle, true
		}
		s.Draft.Title = ev.Text
		return e.advance(s, session.AwaitingImage, msgTitleSaved), true

	case session.AwaitingImage:
		if len(ev.PhotoFileIDs) > 0 {
			// Telegram lists photo variants smallest first; the last one
			// is the highest resolution.
			fileID := ev.PhotoFileIDs[len(ev.PhotoFileIDs)-1]
			url, err := e.images.Resolve(ctx, fileID)
			if err != nil {
				// Abandon the whole draft: resuming at this step would
				// stall the user indefinitely if the hosting service is
				// down. Full restart required.
				e.sessions.Delete(chatID)
				log.WithError(err).Error("Image intake failed, draft discarded")
				return msgUploadFailed, true
			}
			s.Draft.Image = url
			return e.advance(s, session.AwaitingDescription, msgImageSaved), true
		}
		if domain.ValidURL(ev.Text) {
			// URL-paste fallback: accept an externally hosted image as-is.
			s.Draft.Image = ev.Text
			return e.advance(s, session.AwaitingDescription, msgImageSaved), true
		}
		return msgNeedImage, true

	case session.AwaitingDescription:
		if !domain.ValidText(ev.Text) {
			return msgNeedDescription, true
		}
		s.Draft.Description = ev.Text
		return e.advance(s, session.AwaitingLink, msgDescriptionSaved), true

	case session.AwaitingLink:
		if !domain.ValidURL(ev.Text) {
			return msgNeedLink, true
		}
		s.Draft.Link = ev.Text
		return e.commit(ctx, s), true

	default:
		// Unreachable with the fixed step order; treat as a dead session.
		e.sessions.Delete(chatID)
		log.Error("Session in unknown step, discarded")
		return msgExpired, true
	}
}

// advance stores the updated session at the next step and returns the
// confirmation prompt for it.
func (e *Engine) advance(s session.Session, next session.Step, reply string) string {
	s.Step = next
	s.LastActivity = time.Now()
	e.sessions.Put(s.ChatID, s)
	return reply
}

// commit converts the completed draft into a Post and persists it. The
// session is deleted whether or not the insert succeeds; a failed insert is
// reported plainly and the user must restart.
func (e *Engine) commit(ctx context.Context, s session.Session) string {
	defer e.sessions.Delete(s.ChatID)

	category := s.Draft.Category
	if category == "" {
		category = domain.DefaultCategory
	}

	post := domain.Post{
		Title:       s.Draft.Title,
		Image:       s.Draft.Image,
		Description: s.Draft.Description,
		Link:        s.Draft.Link,
		Category:    category,
		CreatedAt:   time.Now().UTC(),
		Views:       0,
		Status:      domain.StatusPublished,
		Source:      domain.SourceTelegram,
	}

	log := e.log.WithFields(logrus.Fields{
		"chat_id": s.ChatID,
		"title":   post.Title,
	})

	id, err := e.posts.Insert(ctx, post)
	if err != nil {
		log.WithError(err).Error("Failed to persist post")
		return msgSaveFailed
	}

	log.WithField("post_id", id).Info("Post committed")
	return formatDone(post)
}

func formatDone(p domain.Post) string {
	return fmt.Sprintf(msgDoneFormat, p.Title, p.Link)
}
