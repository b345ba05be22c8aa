package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"dramadesk/internal/domain"
	"dramadesk/internal/storage"
)

// UpdateSink receives decoded Telegram updates for background processing.
// Implementations must not perform I/O before returning; the webhook's 200
// acknowledgement depends on it.
type UpdateSink interface {
	Dispatch(update *models.Update)
}

// EnvStatus tells the health endpoint which required options are configured.
type EnvStatus struct {
	Mongo      bool
	Telegram   bool
	Admin      bool
	Cloudinary bool
}

// Server exposes the REST collection endpoint, the Telegram webhook and the
// health check.
type Server struct {
	posts   storage.PostRepository
	updates UpdateSink
	env     EnvStatus
	log     logrus.FieldLogger
}

// NewServer creates the HTTP surface.
func NewServer(posts storage.PostRepository, updates UpdateSink, env EnvStatus, logger logrus.FieldLogger) *Server {
	return &Server{
		posts:   posts,
		updates: updates,
		env:     env,
		log:     logger.WithField("component", "httpapi"),
	}
}

// Router builds the chi router with CORS on every route. Preflight OPTIONS
// requests get a bodyless 200 from the CORS middleware; methods outside a
// route's set get chi's 405.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/posts", func(r chi.Router) {
		r.Get("/", s.handleListPosts)
		r.Post("/", s.handleCreatePost)
		r.Delete("/", s.handleDeletePosts)
	})
	r.Post("/api/telegram", s.handleWebhook)
	r.Get("/api/health", s.handleHealth)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleListPosts returns every post, newest first.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.ListAll(r.Context())
	if err != nil {
		s.log.WithError(err).Error("List posts failed")
		switch {
		case errors.Is(err, storage.ErrQueryTimeout):
			s.writeError(w, http.StatusInternalServerError, "query timed out, data may still exist")
		case errors.Is(err, storage.ErrNotConfigured):
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	if posts == nil {
		posts = []domain.Post{}
	}
	s.writeJSON(w, http.StatusOK, posts)
}

type createPostRequest struct {
	Title       string `json:"title"`
	Image       string `json:"image"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Category    string `json:"category"`
}

// missingFields lists the required fields the request left empty.
func (req createPostRequest) missingFields() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"title", req.Title},
		{"image", req.Image},
		{"description", req.Description},
		{"link", req.Link},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// handleCreatePost creates a post from the web surface. createdAt, views,
// likes and status are always server-assigned; a client-supplied createdAt
// is deliberately ignored.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if missing := req.missingFields(); len(missing) > 0 {
		s.writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	category := req.Category
	if category == "" {
		category = domain.DefaultCategory
	}

	post := domain.Post{
		Title:       req.Title,
		Image:       req.Image,
		Description: req.Description,
		Link:        req.Link,
		Category:    category,
		CreatedAt:   time.Now().UTC(),
		Views:       0,
		Likes:       0,
		Status:      domain.StatusPublished,
		Source:      domain.SourceAPI,
	}

	id, err := s.posts.Insert(r.Context(), post)
	if err != nil {
		s.log.WithError(err).Error("Create post failed")
		switch {
		case errors.Is(err, storage.ErrQueryTimeout):
			s.writeError(w, http.StatusInternalServerError, "query timed out, the post may not have been saved")
		case errors.Is(err, storage.ErrNotConfigured):
			s.writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		post.ID = oid
	}
	s.writeJSON(w, http.StatusCreated, post)
}

// handleDeletePosts removes every post (administrative bulk action).
func (s *Server) handleDeletePosts(w http.ResponseWriter, r *http.Request) {
	count, err := s.posts.DeleteAll(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Delete posts failed")
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deletedCount": count,
		"message":      "All posts deleted successfully",
	})
}

// handleWebhook accepts one Telegram update per call. It always returns 200
// so Telegram never retries: the update is decoded and enqueued, and every
// downstream failure is only observable via chat messages or logs. Even a
// malformed body is acknowledged — retrying it could not succeed either.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update models.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.WithError(err).Warn("Discarding malformed webhook payload")
		s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	// Enqueue only; no I/O happens before the ack above is on the wire.
	s.updates.Dispatch(&update)
}

// handleHealth reports which required environment options are present.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := func(ok bool) string {
		if ok {
			return "Set"
		}
		return "Missing"
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "API is working!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"env": map[string]string{
			"mongodb":    status(s.env.Mongo),
			"telegram":   status(s.env.Telegram),
			"admin":      status(s.env.Admin),
			"cloudinary": status(s.env.Cloudinary),
		},
	})
}
