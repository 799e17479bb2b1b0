package httpserver

import (
	"net/http"

	"carnetsante/internal/domain"
	"carnetsante/internal/service"
)

// handleListContacts lists the users the caller may start a conversation
// with. This backs the contact-selection step that creates a conversation on
// first contact.
func handleListContacts(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		role := domain.Role(r.URL.Query().Get("role"))
		contacts, err := convSvc.Contacts(r.Context(), currentUser, role)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contacts)
	}
}
