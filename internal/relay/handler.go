package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"carnetsante/internal/domain"
	"carnetsante/internal/security"
	"carnetsante/internal/service"
	"carnetsante/internal/wire"
)

// Relay bundles the in-memory state of the messaging relay. Everything here
// is rebuilt from scratch on process restart; only the message gateway is
// durable.
type Relay struct {
	Registry   *Registry
	Rooms      *Rooms
	Typing     *TypingState
	Dispatcher *Dispatcher
}

func New() *Relay {
	registry := NewRegistry()
	rooms := NewRooms()
	return &Relay{
		Registry:   registry,
		Rooms:      rooms,
		Typing:     NewTypingState(),
		Dispatcher: NewDispatcher(registry, rooms),
	}
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin allows requests without an Origin header (non-browser
// clients, including the Go client package) and otherwise requires the
// origin to be on the allowlist.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractToken pulls the bearer token from the handshake: ?token= query
// parameter, Authorization header, or "bearer, <token>" subprotocol.
func extractToken(r *http.Request) (string, error) {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", errors.New("missing bearer token")
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
// Authenticates the handshake, registers the connection, then serves frames:
//   - join_room / leave_room  -> room membership (participants only)
//   - send_message            -> persist, then broadcast new_message
//   - mark_as_read            -> persist, then broadcast messages_read
//   - typing_start / typing_stop -> typing state + broadcast to others
func MakeHandler(
	relay *Relay,
	tokens *security.TokenService,
	users domain.UserRepository,
	convs *service.ConversationService,
	msgs *service.MessageService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr, err := extractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		sub, err := tokens.Subject(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByUsername(ctx, sub)
		if err != nil || user == nil || !user.IsActive {
			http.Error(w, "user not found or inactive", http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// The request context carries the router's timeout middleware; the
		// socket outlives it, so frame handling runs on its own context.
		ctx = context.Background()

		conn := NewConnection(user.ID, ws)
		relay.Registry.Register(conn)
		defer func() {
			if last := relay.Registry.Unregister(conn); last {
				// Last live connection: sweep every room so no ghost members
				// remain. Typing flags are deliberately left for the client
				// to clear on reconnect.
				relay.Rooms.LeaveAll(user.ID)
			}
		}()

		if err := conn.Send(wire.ConnectionEstablishedEvent{
			Type:   wire.EventConnectionEstablished,
			UserID: user.ID,
		}); err != nil {
			return
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("relay: read from user %d: %v", user.ID, err)
				}
				break
			}

			var frame wire.Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				log.Printf("relay: malformed frame from user %d: %v", user.ID, err)
				conn.Send(wire.NewError("malformed payload"))
				continue
			}

			switch frame.Type {

			case wire.FrameJoinRoom:
				if _, err := convs.GetForParticipant(ctx, frame.ConversationID, user.ID); err != nil {
					conn.Send(wire.NewError(eventErrorMessage(err)))
					continue
				}
				relay.Rooms.Join(frame.ConversationID, user.ID)
				conn.Send(wire.RoomEvent{
					Type:           wire.EventRoomJoined,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
				})
				relay.Dispatcher.PublishExcept(frame.ConversationID, user.ID, wire.RoomEvent{
					Type:           wire.EventUserJoinedRoom,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
				})

			case wire.FrameLeaveRoom:
				relay.Rooms.Leave(frame.ConversationID, user.ID)
				conn.Send(wire.RoomEvent{
					Type:           wire.EventRoomLeft,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
				})

			case wire.FrameSendMessage:
				msg, err := msgs.SendMessage(ctx, frame.ConversationID, user.ID, frame.Content)
				if err != nil {
					// Persistence or authorization failed: error event only,
					// no partial broadcast.
					log.Printf("relay: send_message from user %d: %v", user.ID, err)
					conn.Send(wire.NewError(eventErrorMessage(err)))
					continue
				}
				relay.Dispatcher.Publish(frame.ConversationID, wire.NewMessageEvent{
					Type:           wire.EventNewMessage,
					ConversationID: frame.ConversationID,
					Message:        service.ToPayload(msg),
				})

			case wire.FrameMarkAsRead:
				if err := msgs.MarkRead(ctx, frame.ConversationID, user.ID); err != nil {
					log.Printf("relay: mark_as_read from user %d: %v", user.ID, err)
					conn.Send(wire.NewError(eventErrorMessage(err)))
					continue
				}
				relay.Dispatcher.Publish(frame.ConversationID, wire.MessagesReadEvent{
					Type:           wire.EventMessagesRead,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
				})

			case wire.FrameTypingStart:
				if _, err := convs.GetForParticipant(ctx, frame.ConversationID, user.ID); err != nil {
					conn.Send(wire.NewError(eventErrorMessage(err)))
					continue
				}
				relay.Typing.Start(frame.ConversationID, user.ID)
				relay.Dispatcher.PublishExcept(frame.ConversationID, user.ID, wire.TypingEvent{
					Type:           wire.EventTypingStart,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
					UserName:       displayName(user),
				})

			case wire.FrameTypingStop:
				if _, err := convs.GetForParticipant(ctx, frame.ConversationID, user.ID); err != nil {
					conn.Send(wire.NewError(eventErrorMessage(err)))
					continue
				}
				relay.Typing.Stop(frame.ConversationID, user.ID)
				relay.Dispatcher.PublishExcept(frame.ConversationID, user.ID, wire.TypingEvent{
					Type:           wire.EventTypingStop,
					ConversationID: frame.ConversationID,
					UserID:         user.ID,
					UserName:       displayName(user),
				})

			default:
				log.Printf("relay: unknown frame type %q from user %d", frame.Type, user.ID)
				conn.Send(wire.NewError("unknown event type"))
			}
		}
	}
}

func displayName(u *domain.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// eventErrorMessage maps service errors to the user-facing error event text.
func eventErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, domain.ErrForbidden):
		return "not a participant in this conversation"
	case errors.Is(err, domain.ErrConversationClosed):
		return "conversation is archived"
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		return "operation failed"
	}
}
