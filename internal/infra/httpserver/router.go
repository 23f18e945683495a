package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	appreview "github.com/bryanwahyu/automaton-review/internal/application/review"
	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
	domain "github.com/bryanwahyu/automaton-review/internal/domain/review"
	ghub "github.com/bryanwahyu/automaton-review/internal/infra/github"
	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

type Router struct {
	reviewSvc     *appreview.Service
	gh            *ghub.Client
	webhookSecret []byte
}

func NewRouter(reviewSvc *appreview.Service, gh *ghub.Client, webhookSecret []byte) http.Handler {
	r := &Router{reviewSvc: reviewSvc, gh: gh, webhookSecret: webhookSecret}
	mux := chi.NewRouter()

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireValidTenant)
		rt.Post("/reviews/analyze", r.wrap(r.handleAnalyze))
		rt.Post("/reviews/manual", r.wrap(r.handleManual))
		rt.Get("/reviews/sessions/{id}", r.wrap(r.handleGetSession))
		rt.Get("/reviews/sessions/{id}/findings", r.wrap(r.handleGetFindings))
		rt.Post("/reviews/sessions/{id}/cancel", r.wrap(r.handleCancel))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Post("/webhook/github", r.wrap(r.handleGitHubWebhook))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrSessionNotFound):
				http.Error(w, "session not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrSessionPrecondition):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrSessionTerminal), errors.Is(err, domain.ErrSessionNotCancelable):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, analysis.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// POST /v1/{tenant}/reviews/analyze
// Body: pull-request metadata plus the changed file set.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body struct {
		Repository string                `json:"repository"`
		PRNumber   int                   `json:"pr_number"`
		PRTitle    string                `json:"pr_title"`
		CommitSHA  string                `json:"commit_sha"`
		Files      []appreview.FileInput `json:"files"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
	}
	for _, f := range body.Files {
		if err := middleware.ValidateFilePath(f.Path); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
		}
		if err := middleware.ValidateLanguage(f.Language); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
		}
	}

	result, err := r.reviewSvc.StartReview(req.Context(), appreview.StartReviewCommand{
		TenantID:   tenant,
		Repository: body.Repository,
		PRNumber:   body.PRNumber,
		PRTitle:    body.PRTitle,
		CommitSHA:  body.CommitSHA,
		Files:      body.Files,
	})
	if err != nil {
		return err
	}
	middleware.IncrementReviews()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(result)
}

// POST /v1/{tenant}/reviews/manual
// Body: {"path": "...", "language": "...", "code": "..."}
// Runs a single snippet through the engine synchronously.
func (r *Router) handleManual(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body struct {
		Path     string `json:"path"`
		Language string `json:"language"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
	}
	if err := middleware.ValidateSnippet(body.Code); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
	}
	if err := middleware.ValidateLanguage(body.Language); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
	}

	sess, findings, err := r.reviewSvc.ManualReview(req.Context(), appreview.ManualReviewCommand{
		TenantID: tenant,
		File: appreview.FileInput{
			Path:     body.Path,
			Language: body.Language,
			Content:  body.Code,
		},
	})
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{
		"session":  sess,
		"findings": findings,
	})
}

// GET /v1/{tenant}/reviews/sessions/{id}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	sess, err := r.reviewSvc.GetSession(req.Context(), tenant, domain.SessionID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(sess)
}

// GET /v1/{tenant}/reviews/sessions/{id}/findings
func (r *Router) handleGetFindings(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	findings, err := r.reviewSvc.GetFindings(req.Context(), tenant, domain.SessionID(id))
	if err != nil {
		return err
	}
	if findings == nil {
		findings = []domain.MergedFinding{}
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(findings)
}

// POST /v1/{tenant}/reviews/sessions/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	if err := r.reviewSvc.Cancel(req.Context(), tenant, domain.SessionID(id)); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{"status": "canceling"})
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.reviewSvc.Summary(req.Context(), tenant, days)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(summary)
}

// POST /v1/{tenant}/webhook/github
// Verifies the HMAC signature, extracts changed files for pull_request
// events and starts a session in the background.
func (r *Router) handleGitHubWebhook(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	payload, err := io.ReadAll(io.LimitReader(req.Body, 5<<20))
	if err != nil {
		return err
	}
	if !ghub.VerifySignature(r.webhookSecret, payload, req.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil
	}

	event := req.Header.Get("X-GitHub-Event")
	if event != "pull_request" {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(map[string]string{"status": "ignored", "event": event})
	}

	ev, err := ghub.ParsePullRequestEvent(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSessionPrecondition, err)
	}
	if !ev.ShouldAnalyze() {
		w.Header().Set("Content-Type", "application/json")
		return json.NewEncoder(w).Encode(map[string]string{"status": "ignored", "action": ev.Action})
	}
	if r.gh == nil {
		return fmt.Errorf("%w: github client not configured", domain.ErrSessionPrecondition)
	}

	// File contents come from the GitHub API; fetch in the background so
	// the webhook responds inside the delivery timeout.
	go r.startWebhookReview(tenant, ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]any{
		"status":     "queued",
		"repository": ev.Repository.FullName,
		"pr_number":  ev.PullRequest.Number,
	})
}

func (r *Router) startWebhookReview(tenant string, ev *ghub.PullRequestEvent) {
	ctx := context.Background()

	owner := ev.Repository.Owner.Login
	repo := ev.Repository.Name
	headSHA := ev.PullRequest.Head.SHA

	prFiles, err := r.gh.PullRequestFiles(ctx, owner, repo, ev.PullRequest.Number)
	if err != nil {
		log.Error().Str("repository", ev.Repository.FullName).Err(err).Msg("listing pr files failed")
		return
	}

	var files []appreview.FileInput
	for _, f := range prFiles {
		if f.Status == "removed" {
			continue
		}
		lang := ghub.LanguageFor(f.Filename)
		if lang == "" {
			continue
		}
		content, err := r.gh.FileContent(ctx, owner, repo, f.Filename, headSHA)
		if err != nil {
			log.Warn().Str("file", f.Filename).Err(err).Msg("fetching file content failed, skipping")
			continue
		}
		files = append(files, appreview.FileInput{
			Path:         f.Filename,
			Language:     lang,
			Content:      content,
			ChangedLines: ghub.ChangedLines(f.Patch),
		})
	}

	result, err := r.reviewSvc.StartReview(ctx, appreview.StartReviewCommand{
		TenantID:   tenant,
		Repository: ev.Repository.FullName,
		PRNumber:   ev.PullRequest.Number,
		PRTitle:    ev.PullRequest.Title,
		CommitSHA:  headSHA,
		Files:      files,
	})
	if err != nil {
		middleware.IncrementReviewsFailed()
		log.Error().Str("repository", ev.Repository.FullName).Err(err).Msg("starting webhook review failed")
		return
	}
	middleware.IncrementReviews()
	log.Info().
		Str("repository", ev.Repository.FullName).
		Int("pr_number", ev.PullRequest.Number).
		Str("session", result.SessionID).
		Int("files", len(files)).
		Msg("webhook review started")
}
