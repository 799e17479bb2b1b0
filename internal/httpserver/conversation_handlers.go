package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"carnetsante/internal/domain"
	"carnetsante/internal/service"
)

type conversationCreateRequest struct {
	ParticipantID int64  `json:"participantId"`
	AppointmentID *int64 `json:"appointmentId"`
}

type conversationResponse struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patientId"`
	DoctorID      int64     `json:"doctorId"`
	AppointmentID *int64    `json:"appointmentId,omitempty"`
	Archived      bool      `json:"archived"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	UnreadCount   int       `json:"unreadCount"`
}

func toConversationResponse(c *domain.Conversation, unread int) conversationResponse {
	return conversationResponse{
		ID:            c.ID,
		PatientID:     c.PatientID,
		DoctorID:      c.DoctorID,
		AppointmentID: c.AppointmentID,
		Archived:      c.Archived,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		UnreadCount:   unread,
	}
}

func handleCreateConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req conversationCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.ParticipantID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "participantId is required"})
			return
		}

		conv, err := convSvc.StartConversation(r.Context(), currentUser.ID, req.ParticipantID, req.AppointmentID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toConversationResponse(conv, 0))
	}
}

func handleListConversations(convSvc *service.ConversationService, msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		convs, err := convSvc.ListForUser(r.Context(), currentUser.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		res := make([]conversationResponse, 0, len(convs))
		for _, c := range convs {
			unread, err := msgSvc.UnreadCount(r.Context(), c.ID, currentUser.ID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			res = append(res, toConversationResponse(c, unread))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleGetConversation(convSvc *service.ConversationService, msgSvc *service.MessageService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		convID, err := conversationIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}

		conv, err := convSvc.GetForParticipant(r.Context(), convID, currentUser.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		unread, err := msgSvc.UnreadCount(r.Context(), conv.ID, currentUser.ID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toConversationResponse(conv, unread))
	}
}

func handleArchiveConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		convID, err := conversationIDParam(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
			return
		}

		if err := convSvc.Archive(r.Context(), convID, currentUser.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
	}
}

func conversationIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
}

// writeServiceError maps domain sentinel errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not a participant in this conversation"})
	case errors.Is(err, domain.ErrConversationClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation is archived"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
