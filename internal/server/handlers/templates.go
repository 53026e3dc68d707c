package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/disputekit/disputekit/internal/core"
	"github.com/disputekit/disputekit/internal/core/letter"
	apperrors "github.com/disputekit/disputekit/internal/errors"
	"github.com/disputekit/disputekit/internal/metrics"
)

var errNoClientStore = errors.New("client store is not configured")

// TemplateReader loads letter templates.
type TemplateReader interface {
	GetTemplate(ctx context.Context, id string) (*core.Template, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]core.Template, error)
}

// ClientReader loads one client for previews.
type ClientReader interface {
	GetClient(ctx context.Context, id string) (*core.ClientContext, error)
}

// TemplateHandler serves /v1/templates.
type TemplateHandler struct {
	Templates TemplateReader
	Clients   ClientReader
	Renderer  *letter.Renderer
}

// PreviewRequest optionally renders against a stored client and real items.
type PreviewRequest struct {
	ClientID string             `json:"client_id,omitempty"`
	Bureau   core.Bureau        `json:"bureau,omitempty"`
	Items    []core.DisputeItem `json:"items,omitempty"`
	Config   core.DisputeConfig `json:"config"`
}

// List returns templates; ?active=true limits to active ones.
func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")
	templates, err := h.Templates.ListTemplates(r.Context(), activeOnly)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// Recommend returns the best active template for ?type= and ?bureau=.
func (h *TemplateHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	bureau := core.Bureau(strings.TrimSpace(query.Get("bureau")))
	if bureau != "" {
		bureau = core.NormalizeBureau(string(bureau))
		if !bureau.Known() {
			respondWithError(w, r, &core.ValidationRejectedError{Field: "bureau", Reason: "unknown bureau " + query.Get("bureau")})
			return
		}
	}
	disputeType := core.DisputeType(strings.TrimSpace(query.Get("type")))
	if disputeType == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("type query parameter is required"))
		return
	}

	templates, err := h.Templates.ListTemplates(r.Context(), true)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	tpl, err := letter.Recommend(templates, disputeType, bureau)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// Get returns one template.
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.Templates.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// Preview renders a template without persisting anything. Unbound tokens
// are filled with sample values and reported in the response.
func (h *TemplateHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.Templates.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req PreviewRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid preview request body"))
			return
		}
	}

	var recipient *letter.Recipient
	if req.ClientID != "" || len(req.Items) > 0 || req.Bureau != "" {
		recipient = &letter.Recipient{Items: req.Items, Config: req.Config}
		if req.Bureau != "" {
			recipient.Bureau = core.NormalizeBureau(string(req.Bureau))
			if !recipient.Bureau.Known() {
				respondWithError(w, r, &core.ValidationRejectedError{Field: "bureau", Reason: "unknown bureau " + string(req.Bureau)})
				return
			}
		}
		if req.ClientID != "" {
			if h.Clients == nil {
				respondWithError(w, r, &core.TransientUnavailableError{Err: errNoClientStore})
				return
			}
			client, err := h.Clients.GetClient(r.Context(), req.ClientID)
			if err != nil {
				respondWithError(w, r, err)
				return
			}
			recipient.Client = *client
		}
	} else if len(req.Config.Variables) > 0 || req.Config.CustomBody != "" || req.Config.CustomSubject != "" {
		recipient = &letter.Recipient{Config: req.Config}
	}

	result := h.Renderer.Preview(tpl, recipient)
	metrics.RecordTemplatePreview(len(result.Sampled) > 0)
	writeJSON(w, http.StatusOK, result)
}
