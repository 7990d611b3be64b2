package api

import (
	"net/http"

	"github.com/Tyrowin/relaychat/internal/domain"
)

// batchUsers resolves a set of ids in one call. Unknown ids are omitted.
func (h *Handler) batchUsers(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchUsersRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := domain.Validate(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	users, err := h.store.UsersByIDs(r.Context(), req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
