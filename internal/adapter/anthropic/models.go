package anthropic

import (
	"log/slog"
	"net/http"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	sessions *session.Manager
}

// NewModelsHandler constructs a ModelsHandler.
func NewModelsHandler(sessions *session.Manager) *ModelsHandler {
	return &ModelsHandler{sessions: sessions}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	models, err := h.sessions.ListModels(r.Context())
	if err != nil {
		mapped := apierrors.Classify(err)
		slog.Warn("list models failed", "status", mapped.Status, "error", err)
		apierrors.WriteJSONError(w, mapped)
		return
	}

	out := ModelsResponse{Data: make([]ModelInfo, 0, len(models))}
	for _, m := range models {
		out.Data = append(out.Data, ModelInfo{ID: m.ID, DisplayName: m.Name, Type: "model"})
	}
	_ = httputil.WriteJSON(w, http.StatusOK, out)
}
