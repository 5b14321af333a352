package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/antidoom/internal/identity"
)

// deleteLocks prevents concurrent delete requests for the same user.
var deleteLocks sync.Map

// DeleteAccount removes all data held for the caller: todos, profile, usage
// counters and any active conversation.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	phone := identity.UserIDFromContext(r.Context())

	lock, _ := deleteLocks.LoadOrStore(phone, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Account deletion already in progress", "user_id", phone)
		Error(w, http.StatusConflict, "deletion_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		deleteLocks.Delete(phone)
	}()

	if h.Chat != nil {
		h.Chat.Cancel(r.Context(), phone)
	}
	if h.Sockets != nil {
		h.Sockets.CloseUser(phone)
	}

	deleted, err := h.Repo.DeleteAccount(r.Context(), phone)
	if err != nil {
		WriteError(w, err)
		return
	}
	if h.OTPCounters != nil {
		n, err := h.OTPCounters.DeleteCounters(r.Context(), phone)
		if err != nil {
			WriteError(w, err)
			return
		}
		deleted.CountersDeleted += n
	}

	slog.Info("Account deleted", "user_id", phone,
		"todos", deleted.TodosDeleted, "profile", deleted.ProfileDeleted, "counters", deleted.CountersDeleted)
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Account deleted successfully",
		"todos_deleted":   deleted.TodosDeleted,
		"profile_deleted": deleted.ProfileDeleted,
		"usage_deleted":   deleted.CountersDeleted,
	})
}
