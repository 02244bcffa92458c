package enforcer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/lowdata/blockd/internal/fsutil"
	"github.com/lowdata/blockd/internal/pf"
	"github.com/lowdata/blockd/internal/rule"
)

// rulesFileMode is the mode of the generated rules file. World-readable so
// operators can inspect it, root-writable only.
const rulesFileMode = 0o644

// Handler provides the HTTP handlers for the enforcer daemon.
type Handler struct {
	version    string
	rulesPath  string
	translator pf.Translator
	filter     Filter
	logger     *slog.Logger
	now        func() time.Time
}

// NewHandler creates a new Handler. filter applies the translated set to the
// host packet filter; the rules file at rulesPath is rewritten on every
// apply.
func NewHandler(version, rulesPath string, translator pf.Translator, filter Filter, logger *slog.Logger) *Handler {
	return &Handler{
		version:    version,
		rulesPath:  rulesPath,
		translator: translator,
		filter:     filter,
		logger:     logger.With("component", "enforcer"),
		now:        time.Now,
	}
}

// Mux returns a configured ServeMux with all daemon routes. The version
// route doubles as the liveness probe and carries no privileged data, so it
// stays outside the mutation auth wrap.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+routeVersion, h.handleVersion)
	mux.HandleFunc("PUT "+routeRules, h.handleApplyRules)
	mux.HandleFunc("DELETE "+routeRules, h.handleRemoveAll)
	return mux
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, VersionResponse{Version: h.version})
}

// handleApplyRules replaces the active rule set. The pipeline is decode,
// validate, translate, write the rules file atomically, reload the filter.
// A failed reload leaves the freshly written file on disk while the kernel
// keeps the previously loaded rules; the next successful apply converges
// both.
func (h *Handler) handleApplyRules(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ApplyResponse{Error: "decode request: " + err.Error()})
		return
	}

	rules, err := rule.FromDicts(req.Rules)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ApplyResponse{Error: err.Error()})
		return
	}

	directives := h.translator.Translate(rules)
	rendered := pf.RenderConfig(directives, h.now())

	if err := fsutil.WriteFileAtomic(h.rulesPath, rendered, rulesFileMode); err != nil {
		h.logger.Error("write rules file failed", "path", h.rulesPath, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, ApplyResponse{Error: err.Error()})
		return
	}

	if err := h.filter.Reload(r.Context(), rules); err != nil {
		h.logger.Error("filter reload failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, ApplyResponse{Error: err.Error()})
		return
	}

	h.logger.Info("rules applied", "rules", len(rules), "directives", len(directives))
	h.writeJSON(w, http.StatusOK, ApplyResponse{OK: true, Directives: len(directives)})
}

// handleRemoveAll flushes the filter and deletes the rules file. Removing
// when nothing is active succeeds.
func (h *Handler) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	if err := h.filter.Flush(r.Context()); err != nil {
		h.logger.Error("filter flush failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, RemoveResponse{Error: err.Error()})
		return
	}

	if err := os.Remove(h.rulesPath); err != nil && !os.IsNotExist(err) {
		h.logger.Error("remove rules file failed", "path", h.rulesPath, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, RemoveResponse{Error: err.Error()})
		return
	}

	h.logger.Info("all rules removed")
	h.writeJSON(w, http.StatusOK, RemoveResponse{OK: true})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}
