// forum/handlers.go
package forum

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog"
)

const sessionUserKey = "user_id"

// PostResponse is returned after a post is created or approved.
type PostResponse struct {
	Post    *Post   `json:"post,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// PendingResponse is the moderation queue of a topic.
type PendingResponse struct {
	TopicID string `json:"topic_id"`
	Posts   []Post `json:"posts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handlers struct {
	service *Service
	users   UserStore
	Session *scs.SessionManager
	logger  zerolog.Logger
}

func NewHandlers(service *Service, users UserStore, sessionLifetime time.Duration, logger zerolog.Logger) *Handlers {
	session := scs.New()
	session.Lifetime = sessionLifetime
	session.Cookie.HttpOnly = true
	session.Cookie.SameSite = http.SameSiteLaxMode
	return &Handlers{
		service: service,
		users:   users,
		Session: session,
		logger:  logger.With().Str("layer", "http").Logger(),
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("GET /topics/{id}", h.showTopic)
	mux.HandleFunc("POST /topics/{id}/posts", h.createPost)
	mux.HandleFunc("GET /topics/{id}/pending", h.listPending)
	mux.HandleFunc("POST /topics/{id}/posts/{postID}/approve", h.approvePost)
}

// Routes returns the mux wrapped in session handling.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.Session.LoadAndSave(mux)
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "login_lookup_failed").Msg("login")
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	ok, err := user.PasswordMatches(password)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "login_compare_failed").Msg("login")
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.Session.RenewToken(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	h.Session.Put(r.Context(), sessionUserKey, user.ID)
	user.Sanitize()
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Destroy(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// currentUser returns the logged-in user, or nil after writing a 401.
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) *User {
	id := h.Session.GetString(r.Context(), sessionUserKey)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil
	}
	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "session_user_lookup_failed").Msg("current user")
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil
	}
	return user
}

func (h *Handlers) showTopic(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Topic(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) createPost(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	post := Post{
		TopicID:  r.PathValue("id"),
		Author:   user.Handle,
		AuthorID: user.ID,
		Body:     r.FormValue("body"),
	}
	if raw := r.FormValue("parent_post_id"); raw != "" {
		parent, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid parent post id")
			return
		}
		post.ParentPostID = &parent
	}

	outcome, err := h.service.CreatePost(r.Context(), &post)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PostResponse{Post: &post, Outcome: outcome})
}

func (h *Handlers) listPending(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	if !user.Admin {
		writeError(w, http.StatusForbidden, ErrForbidden.Error())
		return
	}
	topicID := r.PathValue("id")
	posts, err := h.service.PendingExpertPosts(r.Context(), topicID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if posts == nil {
		posts = []Post{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{TopicID: topicID, Posts: posts})
}

func (h *Handlers) approvePost(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	postID, err := strconv.ParseInt(r.PathValue("postID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	outcome, err := h.service.ApproveExpertPost(r.Context(), r.PathValue("id"), postID, user)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Outcome: outcome})
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, ErrInvalidRequest.Error())
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrNotPendingApproval):
		writeError(w, http.StatusConflict, ErrNotPendingApproval.Error())
	case errors.Is(err, ErrNotAnExpertPost), errors.Is(err, ErrFirstPost):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Str("event", "request_failed").Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
