package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/trivia/internal/assets"
	"github.com/pavelanni/trivia/internal/handler/views"
	appI18n "github.com/pavelanni/trivia/internal/i18n"
	"github.com/pavelanni/trivia/internal/model"
	"github.com/pavelanni/trivia/internal/store"
	"github.com/pavelanni/trivia/internal/survey"
)

const participantCookieName = "participant"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc    *survey.Service
	assets *assets.Library
	config model.SurveyConfig
}

// New creates a new Handler.
func New(svc *survey.Service, lib *assets.Library, cfg model.SurveyConfig) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler requires a survey service")
	}
	if lib == nil {
		lib = assets.New(nil)
	}
	return &Handler{svc: svc, assets: lib, config: cfg}, nil
}

// Router builds the complete HTTP handler, mounted under the configured base path.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())

	basePath := h.config.BasePath
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.Post("/start", h.handleStart)
		r.Post("/answer", h.handleAnswer)
		r.Post("/retry", h.handleRetry)
	})
	// Image requests must not rotate the CSRF cookie under an open form.
	r.Get("/photo", h.handlePhoto)
}

// BasePathMiddleware exposes the deployment prefix to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) participantID(r *http.Request) string {
	c, err := r.Cookie(participantCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setParticipant(w http.ResponseWriter, id string) {
	c := &http.Cookie{
		Name:     participantCookieName,
		Value:    id,
		Path:     h.cookiePath(),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if id == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	var sess *model.Session
	if id := h.participantID(r); id != "" {
		s, err := h.svc.Current(id)
		switch {
		case err == nil:
			sess = s
		case errors.Is(err, store.ErrNotFound):
			slog.Info("participant cookie refers to unknown session, starting over", "session_id", id)
		default:
			h.serverError(w, r, "load session", err)
			return
		}
	}
	if sess == nil {
		s, err := h.svc.Start()
		if err != nil {
			h.serverError(w, r, "start session", err)
			return
		}
		h.setParticipant(w, s.ID)
		sess = s
	}
	h.renderPhase(w, r, sess)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}
	_, err := h.svc.Acknowledge(r.Context(), id)
	if !h.handleTransitionError(w, r, err) {
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}
	position, err := strconv.Atoi(r.FormValue("position"))
	if err != nil {
		position = -1
	}
	answer := model.ParseAnswer(r.FormValue("answer"))
	text := r.FormValue("response_text")

	sess, err := h.svc.Submit(r.Context(), id, position, answer, text)
	var verr *survey.ValidationError
	if errors.As(err, &verr) {
		slog.Debug("incomplete response", "session_id", id, "error", err)
		h.renderStatement(w, r, sess, http.StatusUnprocessableEntity, answer, text, true)
		return
	}
	if !h.handleTransitionError(w, r, err) {
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}
	_, err := h.svc.RetryPersist(r.Context(), id)
	if errors.Is(err, survey.ErrAlreadyPersisted) || errors.Is(err, survey.ErrNotComplete) {
		err = nil
	}
	if !h.handleTransitionError(w, r, err) {
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handlePhoto(w http.ResponseWriter, r *http.Request) {
	id := h.participantID(r)
	if id == "" {
		http.NotFound(w, r)
		return
	}
	sess, err := h.svc.Get(id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("load session for photo", "session_id", id, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	stim, ok := sess.Current()
	if !ok || !stim.ShowPhoto {
		http.NotFound(w, r)
		return
	}
	data, ctype, err := h.assets.Lookup(stim.Photo)
	if err != nil {
		var nf *assets.AssetNotFoundError
		if !errors.As(err, &nf) {
			slog.Error("read photo", "photo", stim.Photo, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		slog.Debug("write photo", "error", err)
	}
}

// requireParticipant resolves the participant cookie of a form post.
func (h *Handler) requireParticipant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := h.participantID(r)
	if id == "" {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return "", false
	}
	return id, true
}

// handleTransitionError reports whether the caller should continue with its
// redirect. Stale or repeated submissions, including one that lost a race with
// its twin, and failed appends fall through to the index page, which renders
// whatever phase the session is in.
func (h *Handler) handleTransitionError(w http.ResponseWriter, r *http.Request, err error) bool {
	var perr *survey.PersistenceError
	switch {
	case err == nil:
		return true
	case errors.As(err, &perr):
		return true
	case errors.Is(err, survey.ErrInvalidTransition), errors.Is(err, survey.ErrSessionComplete),
		errors.Is(err, store.ErrConflict):
		slog.Debug("ignored stale submission", "error", err)
		return true
	case errors.Is(err, store.ErrNotFound):
		h.setParticipant(w, "")
		h.render(w, r, http.StatusNotFound, views.ErrorPage("ErrorSessionExpired"))
		return false
	default:
		h.serverError(w, r, "update session", err)
		return false
	}
}

func (h *Handler) renderPhase(w http.ResponseWriter, r *http.Request, sess *model.Session) {
	switch sess.Phase {
	case model.PhaseInstructions:
		h.render(w, r, http.StatusOK, views.InstructionsPage(sess.Condition, h.svc.Quota().NPhotoEach > 0))
	case model.PhaseAnswering:
		h.renderStatement(w, r, sess, http.StatusOK, model.AnswerUnset, "", false)
	default:
		h.render(w, r, http.StatusOK, views.CompletePage(len(sess.Responses), sess.Persisted, h.config.Contact))
	}
}

func (h *Handler) renderStatement(w http.ResponseWriter, r *http.Request, sess *model.Session, status int, answer model.Answer, text string, incomplete bool) {
	stim, ok := sess.Current()
	if !ok {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	h.render(w, r, status, views.StatementPage(views.Statement{
		N:            sess.Position + 1,
		Total:        len(sess.Sequence),
		Text:         stim.Text,
		Condition:    sess.Condition,
		ShowPhoto:    stim.ShowPhoto && h.assets.Exists(stim.Photo),
		Answer:       answer,
		ResponseText: text,
		Incomplete:   incomplete,
	}))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op+" failed", "error", err)
	h.render(w, r, http.StatusInternalServerError, views.ErrorPage("ErrorInternal"))
}
