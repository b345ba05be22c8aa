package wizard

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dramadesk/internal/domain"
	"dramadesk/internal/session"
)

// fakeResolver stands in for the Cloudinary intake.
type fakeResolver struct {
	url   string
	err   error
	calls []string
}

func (f *fakeResolver) Resolve(_ context.Context, fileID string) (string, error) {
	f.calls = append(f.calls, fileID)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// fakeRepo records inserted posts in memory.
type fakeRepo struct {
	inserted  []domain.Post
	insertErr error
}

func (f *fakeRepo) Insert(_ context.Context, post domain.Post) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, post)
	return primitive.NewObjectID().Hex(), nil
}

func (f *fakeRepo) ListAll(context.Context) ([]domain.Post, error) { return f.inserted, nil }
func (f *fakeRepo) DeleteAll(context.Context) (int64, error) {
	n := int64(len(f.inserted))
	f.inserted = nil
	return n, nil
}
func (f *fakeRepo) Close(context.Context) error { return nil }

func newTestEngine(t *testing.T, images *fakeResolver, posts *fakeRepo) (*Engine, *session.Store) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)

	sessions := session.NewStore()
	return NewEngine(sessions, images, posts, log), sessions
}

func step(t *testing.T, sessions *session.Store, chatID int64) session.Step {
	t.Helper()
	s, ok := sessions.Get(chatID)
	require.True(t, ok, "expected an active session")
	return s.Step
}

// TestEngine_FullFlowWithImageURL walks the whole wizard using the
// URL-paste fallback at the image step and checks the committed post.
func TestEngine_FullFlowWithImageURL(t *testing.T) {
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, &fakeResolver{}, repo)
	ctx := context.Background()
	chatID := int64(100)

	reply := engine.Start(chatID)
	assert.Contains(t, reply, "post title")
	assert.Equal(t, session.AwaitingTitle, step(t, sessions, chatID))

	reply, handled := engine.Handle(ctx, chatID, Event{Text: "My Title"})
	require.True(t, handled)
	assert.Contains(t, reply, "Title saved")
	assert.Equal(t, session.AwaitingImage, step(t, sessions, chatID))

	reply, handled = engine.Handle(ctx, chatID, Event{Text: "https://x/img.png"})
	require.True(t, handled)
	assert.Contains(t, reply, "Image saved")
	assert.Equal(t, session.AwaitingDescription, step(t, sessions, chatID))

	reply, handled = engine.Handle(ctx, chatID, Event{Text: "desc"})
	require.True(t, handled)
	assert.Contains(t, reply, "Description saved")
	assert.Equal(t, session.AwaitingLink, step(t, sessions, chatID))

	reply, handled = engine.Handle(ctx, chatID, Event{Text: "https://x/page"})
	require.True(t, handled)
	assert.Contains(t, reply, "Post Created Successfully")

	// Exactly one post, with every collected field plus the defaults.
	require.Len(t, repo.inserted, 1)
	post := repo.inserted[0]
	assert.Equal(t, "My Title", post.Title)
	assert.Equal(t, "https://x/img.png", post.Image)
	assert.Equal(t, "desc", post.Description)
	assert.Equal(t, "https://x/page", post.Link)
	assert.Equal(t, "news", post.Category)
	assert.Equal(t, 0, post.Views)
	assert.Equal(t, domain.SourceTelegram, post.Source)
	assert.False(t, post.CreatedAt.IsZero(), "commit must stamp createdAt")

	// Session is removed on completion.
	_, ok := sessions.Get(chatID)
	assert.False(t, ok)
}

// TestEngine_PhotoIntake uploads via the photo path and checks that the
// highest-resolution variant (the last file ID) is selected.
func TestEngine_PhotoIntake(t *testing.T) {
	images := &fakeResolver{url: "https://cdn.example/durable.jpg"}
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, images, repo)
	ctx := context.Background()
	chatID := int64(200)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Title"})

	reply, handled := engine.Handle(ctx, chatID, Event{
		PhotoFileIDs: []string{"small", "medium", "large"},
	})
	require.True(t, handled)
	assert.Contains(t, reply, "Image saved")

	require.Len(t, images.calls, 1)
	assert.Equal(t, "large", images.calls[0], "should pick the last, highest-resolution variant")

	s, ok := sessions.Get(chatID)
	require.True(t, ok)
	assert.Equal(t, session.AwaitingDescription, s.Step)
	assert.Equal(t, "https://cdn.example/durable.jpg", s.Draft.Image)
}

// TestEngine_PhotoIntakeFailureDiscardsDraft: a failed upload abandons the
// whole session; the user must restart from scratch.
func TestEngine_PhotoIntakeFailureDiscardsDraft(t *testing.T) {
	images := &fakeResolver{err: errors.New("cloudinary is down")}
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, images, repo)
	ctx := context.Background()
	chatID := int64(300)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Title"})

	reply, handled := engine.Handle(ctx, chatID, Event{PhotoFileIDs: []string{"f1"}})
	require.True(t, handled)
	assert.Contains(t, reply, "Failed to upload")

	_, ok := sessions.Get(chatID)
	assert.False(t, ok, "session must be deleted after intake failure")
	assert.Empty(t, repo.inserted)
}

// TestEngine_RejectsNonURLAtImageStep: invalid input keeps the wizard at
// the same step and persists nothing.
func TestEngine_RejectsNonURLAtImageStep(t *testing.T) {
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, &fakeResolver{}, repo)
	ctx := context.Background()
	chatID := int64(400)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Title"})

	reply, handled := engine.Handle(ctx, chatID, Event{Text: "not-a-url"})
	require.True(t, handled)
	assert.Contains(t, reply, "doesn't look like an image")
	assert.Equal(t, session.AwaitingImage, step(t, sessions, chatID))
	assert.Empty(t, repo.inserted)
}

func TestEngine_RejectsInvalidLink(t *testing.T) {
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, &fakeResolver{}, repo)
	ctx := context.Background()
	chatID := int64(500)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Title"})
	_, _ = engine.Handle(ctx, chatID, Event{Text: "https://x/img.png"})
	_, _ = engine.Handle(ctx, chatID, Event{Text: "desc"})

	reply, handled := engine.Handle(ctx, chatID, Event{Text: "nope"})
	require.True(t, handled)
	assert.Contains(t, reply, "doesn't look like a link")
	assert.Equal(t, session.AwaitingLink, step(t, sessions, chatID))
	assert.Empty(t, repo.inserted)
}

// TestEngine_CommitFailureStillClearsSession: a failed insert reports "not
// saved" and deletes the session; there is no automatic retry.
func TestEngine_CommitFailureStillClearsSession(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("mongo unavailable")}
	engine, sessions := newTestEngine(t, &fakeResolver{}, repo)
	ctx := context.Background()
	chatID := int64(600)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Title"})
	_, _ = engine.Handle(ctx, chatID, Event{Text: "https://x/img.png"})
	_, _ = engine.Handle(ctx, chatID, Event{Text: "desc"})

	reply, handled := engine.Handle(ctx, chatID, Event{Text: "https://x/page"})
	require.True(t, handled)
	assert.Contains(t, reply, "not")
	assert.Contains(t, reply, "saved")

	_, ok := sessions.Get(chatID)
	assert.False(t, ok, "session is cleared even when the insert fails")
	assert.Empty(t, repo.inserted)
}

// TestEngine_ExpiredSessionIsTreatedAsAbsent: a stale session is deleted on
// the next event, not resumed, and the event is not applied.
func TestEngine_ExpiredSessionIsTreatedAsAbsent(t *testing.T) {
	repo := &fakeRepo{}
	engine, sessions := newTestEngine(t, &fakeResolver{}, repo)
	ctx := context.Background()
	chatID := int64(700)

	sessions.Put(chatID, session.Session{
		ChatID:       chatID,
		Step:         session.AwaitingDescription,
		LastActivity: time.Now().Add(-11 * time.Minute),
	})

	reply, handled := engine.Handle(ctx, chatID, Event{Text: "late description"})
	require.True(t, handled)
	assert.Contains(t, reply, "expired")

	_, ok := sessions.Get(chatID)
	assert.False(t, ok)
	assert.Empty(t, repo.inserted)
}

func TestEngine_NoSessionIgnoresInput(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeResolver{}, &fakeRepo{})

	reply, handled := engine.Handle(context.Background(), 800, Event{Text: "hello?"})
	assert.False(t, handled)
	assert.Empty(t, reply)
}

func TestEngine_StartOverwritesExistingSession(t *testing.T) {
	engine, sessions := newTestEngine(t, &fakeResolver{}, &fakeRepo{})
	ctx := context.Background()
	chatID := int64(900)

	engine.Start(chatID)
	_, _ = engine.Handle(ctx, chatID, Event{Text: "Old Title"})
	assert.Equal(t, session.AwaitingImage, step(t, sessions, chatID))

	// A second /addpost restarts from the beginning with an empty draft.
	engine.Start(chatID)
	s, ok := sessions.Get(chatID)
	require.True(t, ok)
	assert.Equal(t, session.AwaitingTitle, s.Step)
	assert.Empty(t, s.Draft.Title)
}

func TestEngine_Cancel(t *testing.T) {
	engine, sessions := newTestEngine(t, &fakeResolver{}, &fakeRepo{})
	chatID := int64(1000)

	assert.Contains(t, engine.Cancel(chatID), "Nothing to cancel")

	engine.Start(chatID)
	assert.Contains(t, engine.Cancel(chatID), "discarded")

	_, ok := sessions.Get(chatID)
	assert.False(t, ok)
}

// TestEngine_StepsOnlyAdvanceForward records the observed step after every
// accepted event and checks the order never skips or moves backward.
func TestEngine_StepsOnlyAdvanceForward(t *testing.T) {
	engine, sessions := newTestEngine(t, &fakeResolver{}, &fakeRepo{})
	ctx := context.Background()
	chatID := int64(1100)

	engine.Start(chatID)
	observed := []session.Step{step(t, sessions, chatID)}

	for _, text := range []string{"Title", "bogus", "https://x/i.png", "desc"} {
		_, _ = engine.Handle(ctx, chatID, Event{Text: text})
		if s, ok := sessions.Get(chatID); ok {
			observed = append(observed, s.Step)
		}
	}

	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, int(observed[i]), int(observed[i-1]),
			"steps must never move backward")
		assert.LessOrEqual(t, int(observed[i])-int(observed[i-1]), 1,
			"steps must never skip ahead")
	}
}
