package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/rampart/internal/middleware"
	"github.com/BradenHooton/rampart/internal/models"
	"github.com/BradenHooton/rampart/internal/policy"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

// Comment form fields
const (
	FieldContent    = "comment"
	FieldHoneypot   = "website_url"
	FieldRenderedAt = "rendered_at"
	FieldPostID     = "post_id"
	FieldType       = "comment_type"
)

// CommentHandler screens comment submissions with the anti-spam policy.
// Storing accepted comments is left to the host application.
type CommentHandler struct {
	engine PolicyEngine
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(engine PolicyEngine) *CommentHandler {
	return &CommentHandler{engine: engine}
}

// CommentRequest is the validated form submission
type CommentRequest struct {
	Content string `validate:"required,max=65525"`
	PostID  string `validate:"required,max=64"`
}

// Submit handles a comment form post
// @Router /comments [post]
func (h *CommentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid form")
		return
	}

	req := CommentRequest{
		Content: r.PostForm.Get(FieldContent),
		PostID:  r.PostForm.Get(FieldPostID),
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	rc := middleware.RequestContext(r)
	rc.Comment = &models.Comment{
		Content:     req.Content,
		Honeypot:    r.PostForm.Get(FieldHoneypot),
		RenderedAt:  parseUnix(r.PostForm.Get(FieldRenderedAt)),
		PostID:      req.PostID,
		CommentType: r.PostForm.Get(FieldType),
	}

	if d := h.engine.Evaluate(r.Context(), policy.NameAntispam, rc); !d.Allowed() {
		pkghttp.WriteDecision(w, d)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"accepted"}`))
}

// parseUnix returns the zero time for missing or malformed timestamps
func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
