package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/planhub/messaging/internal/server"
	"github.com/planhub/messaging/internal/types"
)

type SendMessageRequest struct {
	ReceiverId int                   `json:"receiver_id"`
	Content    string                `json:"content"`
	Attachment *types.FileDescriptor `json:"attachment,omitempty"`
}

type SendGroupMessageRequest struct {
	Content    string                `json:"content"`
	Attachment *types.FileDescriptor `json:"attachment,omitempty"`
}

type MarkReadRequest struct {
	SenderId int `json:"sender_id"`
}

type CreateRoomRequest struct {
	Name      string `json:"name"`
	MemberIds []int  `json:"member_ids"`
}

type AddMembersRequest struct {
	UserIds []int `json:"user_ids"`
}

type SubscribeRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

type TaskEventRequest struct {
	UserId    int             `json:"user_id"`
	TaskTitle string          `json:"task_title"`
	Status    string          `json:"status,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *App) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Printf("api error: %v", errResp.Err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// queryInt parses an optional integer query parameter, returning def when
// absent and -1 when malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (s *App) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *App) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	msg, err := s.chat.SendDirectMessage(identity.Id, req.ReceiverId, req.Content, req.Attachment)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *App) getConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	otherId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid user id"))
		return
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	if limit < 0 || offset < 0 {
		s.writeError(w, NewBadRequestError("invalid pagination parameters"))
		return
	}

	msgs, err := s.chat.GetConversation(identity.Id, otherId, limit, offset)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *App) deleteMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	messageId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid message id"))
		return
	}

	if err := s.chat.DeleteMessage(messageId, identity.Id); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) markMessagesRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if err := s.chat.MarkMessagesRead(identity.Id, req.SenderId); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getUnreadCounts(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	counts, err := s.chat.GetUnreadCounts(identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, counts)
}

func (s *App) searchMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	msgs, err := s.chat.SearchMessages(identity.Id, r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	room, err := s.chat.CreateRoom(req.Name, identity.Id, req.MemberIds)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *App) listRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	rooms, err := s.chat.ListRooms(identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *App) getRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	room, err := s.chat.GetRoom(r.PathValue("id"), identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.chat.DeleteRoom(r.PathValue("id"), identity.Id); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) addRoomMembers(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req AddMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	// Only current members may grow the room.
	if _, err := s.chat.GetRoom(r.PathValue("id"), identity.Id); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	room, err := s.chat.AddMembers(r.PathValue("id"), req.UserIds)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *App) removeRoomMember(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	userId, err := strconv.Atoi(r.PathValue("userId"))
	if err != nil {
		s.writeError(w, NewBadRequestError("invalid user id"))
		return
	}

	// Members may leave on their own; removing someone else requires
	// being in the room.
	if userId != identity.Id {
		if _, err := s.chat.GetRoom(r.PathValue("id"), identity.Id); err != nil {
			s.writeError(w, fromDomainError(err))
			return
		}
	}

	if err := s.chat.RemoveMember(r.PathValue("id"), userId); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	msgs, err := s.chat.GetRoomMessages(r.PathValue("id"), identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *App) sendGroupMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SendGroupMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	msg, err := s.chat.SendGroupMessage(r.PathValue("id"), identity.Id, req.Content, req.Attachment)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *App) markGroupMessagesRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.chat.MarkGroupMessagesRead(r.PathValue("id"), identity.Id); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getUnreadGroupCounts(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	counts, err := s.chat.GetUnreadGroupCounts(identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, counts)
}

func (s *App) saveSubscription(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	sub, err := s.notifier.SaveSubscription(identity.Id, req.Endpoint, req.P256dhKey, req.AuthKey)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, sub)
}

func (s *App) listNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)
	if limit < 0 || offset < 0 {
		s.writeError(w, NewBadRequestError("invalid pagination parameters"))
		return
	}

	notifs, err := s.notifier.ListNotifications(identity.Id, limit, offset)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, notifs)
}

func (s *App) getUnreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	count, err := s.notifier.GetUnreadCount(identity.Id)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *App) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	if err := s.notifier.MarkNotificationRead(identity.Id, r.PathValue("id")); err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// taskAssigned is called by the task service when a task is assigned.
func (s *App) taskAssigned(w http.ResponseWriter, r *http.Request) {
	var req TaskEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if req.UserId <= 0 || req.TaskTitle == "" {
		s.writeError(w, NewBadRequestError("user_id and task_title are required"))
		return
	}

	notif, err := s.notifier.NotifyTaskAssignment(req.UserId, req.TaskTitle, req.Data)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, notif)
}

// taskStatusChanged is called by the task service on status transitions.
func (s *App) taskStatusChanged(w http.ResponseWriter, r *http.Request) {
	var req TaskEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError(""))
		return
	}

	if req.UserId <= 0 || req.TaskTitle == "" || req.Status == "" {
		s.writeError(w, NewBadRequestError("user_id, task_title and status are required"))
		return
	}

	notif, err := s.notifier.NotifyTaskStatus(req.UserId, req.TaskTitle, req.Status, req.Data)
	if err != nil {
		s.writeError(w, fromDomainError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, notif)
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := CallerIdentity(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(identity, conn, s.gateway, s.chat, s.log)

	s.gateway.RegisterChan <- client
	go client.Write()
	go client.Read()
}
