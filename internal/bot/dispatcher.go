package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"dramadesk/internal/storage"
	"dramadesk/internal/wizard"
)

// processTimeout bounds the background handling of a single update.
const processTimeout = 60 * time.Second

const (
	msgUnauthorized = "❌ You are not authorized."
	msgPong         = "🏓 pong"
	msgNoPosts      = "📭 No posts found."

	msgListTimeout = "⏳ The posts query timed out — your data may still exist.\nTry again in a moment."
	msgListFailed  = "❌ Error fetching posts."
	msgClearFailed = "❌ Error deleting posts."

	msgWelcome = "🤖 *Welcome to DramaDesk!*\n\n" +
		"*Commands:*\n" +
		"/addpost - Create a new post with photo upload\n" +
		"/list - Show all posts\n" +
		"/clear - Delete all posts\n" +
		"/cancel - Discard the current draft\n" +
		"/help - Show help\n\n" +
		"*How to add a post:*\n" +
		"1. Send /addpost\n" +
		"2. Send the title\n" +
		"3. Upload a photo (or paste an image URL)\n" +
		"4. Send the description\n" +
		"5. Send the link"

	msgHelp = "📚 *DramaDesk Help*\n\n" +
		"*Upload photos directly:*\n" +
		"• Just send any photo when asked for an image\n" +
		"• It is re-hosted and auto-resized for the website\n\n" +
		"*Commands:*\n" +
		"/addpost - Create a post\n" +
		"/list - View all posts\n" +
		"/clear - Delete all posts\n" +
		"/cancel - Discard the current draft\n" +
		"/ping - Check the bot is alive\n\n" +
		"*Example workflow:*\n" +
		"1. /addpost\n" +
		"2. \"Winter Wardrobe Secrets\"\n" +
		"3. 📸 [upload photo]\n" +
		"4. \"Behind the scenes of winter costumes\"\n" +
		"5. \"https://example.com/article\""
)

// SeenStore records processed update IDs; see storage.DedupStore.
type SeenStore interface {
	MarkSeen(updateID int64) (first bool, err error)
}

// Dispatcher routes inbound Telegram updates: it gates on the single admin,
// dispatches the fixed commands, and hands everything else to the wizard.
//
// Updates are queued per chat and drained FIFO on one goroutine per chat,
// so two messages from the same conversation can never race on the same
// session while different conversations proceed concurrently. Dispatch
// itself only enqueues — all I/O happens after the webhook has already
// acknowledged the update.
type Dispatcher struct {
	adminID string
	sender  Sender
	wizard  *wizard.Engine
	posts   storage.PostRepository
	seen    SeenStore
	log     logrus.FieldLogger

	mu     sync.Mutex
	queues map[int64][]*models.Update
	busy   map[int64]bool
}

// NewDispatcher creates a dispatcher. adminID is the string form of the only
// Telegram user ID allowed through; when empty the gate fails closed.
func NewDispatcher(adminID string, sender Sender, wiz *wizard.Engine, posts storage.PostRepository, seen SeenStore, logger logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		adminID: strings.TrimSpace(adminID),
		sender:  sender,
		wizard:  wiz,
		posts:   posts,
		seen:    seen,
		log:     logger.WithField("component", "dispatcher"),
		queues:  make(map[int64][]*models.Update),
		busy:    make(map[int64]bool),
	}
}

// Dispatch enqueues one update for background processing. It never blocks
// on I/O and never returns an error: failures past this point are only
// observable through outbound chat messages and logs.
func (d *Dispatcher) Dispatch(update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	d.mu.Lock()
	d.queues[chatID] = append(d.queues[chatID], update)
	if !d.busy[chatID] {
		d.busy[chatID] = true
		go d.drain(chatID)
	}
	d.mu.Unlock()
}

// drain processes the queued updates for one chat in arrival order.
func (d *Dispatcher) drain(chatID int64) {
	for {
		d.mu.Lock()
		queue := d.queues[chatID]
		if len(queue) == 0 {
			d.busy[chatID] = false
			d.mu.Unlock()
			return
		}
		update := queue[0]
		d.queues[chatID] = queue[1:]
		d.mu.Unlock()

		d.process(update)
	}
}

// process handles a single update end to end.
func (d *Dispatcher) process(update *models.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	msg := update.Message
	chatID := msg.Chat.ID
	log := d.log.WithFields(logrus.Fields{
		"update_id": update.ID,
		"chat_id":   chatID,
	})

	// Idempotence gate: Telegram redelivers updates whose acknowledgement
	// was lost. A store error is logged and the update processed anyway —
	// availability over strict once-only.
	first, err := d.seen.MarkSeen(update.ID)
	if err != nil {
		log.WithError(err).Warn("Dedup store unavailable, processing anyway")
	} else if !first {
		log.Info("Skipping already-processed update")
		return
	}

	if !d.authorized(msg.From) {
		log.Warn("Rejected unauthorized sender")
		d.reply(ctx, chatID, msgUnauthorized, log)
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		d.reply(ctx, chatID, msgWelcome, log)
	case strings.HasPrefix(text, "/help"):
		d.reply(ctx, chatID, msgHelp, log)
	case strings.HasPrefix(text, "/ping"):
		d.reply(ctx, chatID, msgPong, log)
	case strings.HasPrefix(text, "/addpost"):
		d.reply(ctx, chatID, d.wizard.Start(chatID), log)
	case strings.HasPrefix(text, "/cancel"):
		d.reply(ctx, chatID, d.wizard.Cancel(chatID), log)
	case strings.HasPrefix(text, "/list"):
		d.reply(ctx, chatID, d.listPosts(ctx), log)
	case strings.HasPrefix(text, "/clear"):
		d.reply(ctx, chatID, d.clearPosts(ctx), log)
	default:
		ev := wizard.Event{Text: msg.Text}
		for _, p := range msg.Photo {
			ev.PhotoFileIDs = append(ev.PhotoFileIDs, p.FileID)
		}
		reply, handled := d.wizard.Handle(ctx, chatID, ev)
		if !handled {
			// Free-form input with no wizard in progress is ignored.
			log.Debug("Ignoring message outside any wizard session")
			return
		}
		d.reply(ctx, chatID, reply, log)
	}
}

// authorized reports whether from is the configured administrator. A missing
// admin configuration rejects everyone (fail closed).
func (d *Dispatcher) authorized(from *models.User) bool {
	if from == nil || d.adminID == "" {
		return false
	}
	return strconv.FormatInt(from.ID, 10) == d.adminID
}

// reply delivers one outbound message; delivery failure is terminal to this
// update and only logged.
func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, log logrus.FieldLogger) {
	if err := d.sender.Send(ctx, chatID, text); err != nil {
		log.WithError(err).Error("Failed to deliver reply")
	}
}

func (d *Dispatcher) listPosts(ctx context.Context) string {
	posts, err := d.posts.ListAll(ctx)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrQueryTimeout):
			return msgListTimeout
		case errors.Is(err, storage.ErrNotConfigured):
			return fmt.Sprintf("⚙️ Configuration error: %v", err)
		default:
			return msgListFailed
		}
	}
	if len(posts) == 0 {
		return msgNoPosts
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Total Posts: %d*\n\n", len(posts))
	for i, p := range posts {
		fmt.Fprintf(&b, "%d. *%s*\n", i+1, p.Title)
		fmt.Fprintf(&b, "   📅 %s\n", p.CreatedAt.Format("2006-01-02"))
		fmt.Fprintf(&b, "   🔗 %s\n\n", p.Link)
	}
	return b.String()
}

func (d *Dispatcher) clearPosts(ctx context.Context) string {
	count, err := d.posts.DeleteAll(ctx)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrQueryTimeout):
			return msgListTimeout
		case errors.Is(err, storage.ErrNotConfigured):
			return fmt.Sprintf("⚙️ Configuration error: %v", err)
		default:
			return msgClearFailed
		}
	}
	return fmt.Sprintf("🗑 Deleted %d posts.", count)
}
