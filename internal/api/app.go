package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/planhub/messaging/internal/auth"
	"github.com/planhub/messaging/internal/config"
	"github.com/planhub/messaging/internal/server"
	"github.com/planhub/messaging/internal/types"
)

// ConversationService is the conversation surface the REST handlers call.
type ConversationService interface {
	SendDirectMessage(senderId, receiverId int, content string, file *types.FileDescriptor) (types.DirectMessage, error)
	GetConversation(userId, otherId, limit, offset int) ([]types.DirectMessage, error)
	MarkMessagesRead(receiverId, senderId int) error
	GetUnreadCounts(userId int) (map[int]int, error)
	DeleteMessage(messageId, requesterId int) error
	SearchMessages(userId int, term string) ([]types.DirectMessage, error)
	CreateRoom(name string, creatorId int, memberIds []int) (types.Room, error)
	GetRoom(externalId string, userId int) (types.Room, error)
	ListRooms(userId int) ([]types.Room, error)
	AddMembers(externalId string, userIds []int) (types.Room, error)
	RemoveMember(externalId string, userId int) error
	DeleteRoom(externalId string, requesterId int) error
	SendGroupMessage(roomId string, senderId int, content string, file *types.FileDescriptor) (types.GroupMessage, error)
	GetRoomMessages(externalId string, userId int) ([]types.GroupMessage, error)
	MarkGroupMessagesRead(externalId string, userId int) error
	GetUnreadGroupCounts(userId int) ([]types.RoomUnreadCount, error)
}

// NotificationService is the notification surface the REST handlers call.
type NotificationService interface {
	SaveSubscription(userId int, endpoint, p256dhKey, authKey string) (types.PushSubscription, error)
	NotifyTaskAssignment(userId int, taskTitle string, data json.RawMessage) (types.Notification, error)
	NotifyTaskStatus(userId int, taskTitle, status string, data json.RawMessage) (types.Notification, error)
	ListNotifications(userId, limit, offset int) ([]types.Notification, error)
	GetUnreadCount(userId int) (int, error)
	MarkNotificationRead(userId int, notificationId string) error
}

// Pinger is the health-check view of the repository.
type Pinger interface {
	Ping() error
}

type App struct {
	log            *log.Logger
	chat           ConversationService
	notifier       NotificationService
	gateway        *server.MessagingServer
	verifier       auth.TokenVerifier
	db             Pinger
	mux            *http.Server
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, gateway *server.MessagingServer, chatSvc ConversationService,
	notifierSvc NotificationService, verifier auth.TokenVerifier, db Pinger, cfg *config.Config) *App {

	s := &App{
		log:            logger,
		chat:           chatSvc,
		notifier:       notifierSvc,
		gateway:        gateway,
		verifier:       verifier,
		db:             db,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthz)

	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.sendDirectMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/messages/read", s.authMiddleware(s.markMessagesRead))
	mux.HandleFunc("GET /api/messages/unread", s.authMiddleware(s.getUnreadCounts))
	mux.HandleFunc("GET /api/messages/search", s.authMiddleware(s.searchMessages))
	mux.HandleFunc("GET /api/conversations/{userId}", s.authMiddleware(s.getConversation))

	mux.HandleFunc("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.HandleFunc("GET /api/rooms/unread", s.authMiddleware(s.getUnreadGroupCounts))
	mux.HandleFunc("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.HandleFunc("DELETE /api/rooms/{id}", s.authMiddleware(s.deleteRoom))
	mux.HandleFunc("POST /api/rooms/{id}/members", s.authMiddleware(s.addRoomMembers))
	mux.HandleFunc("DELETE /api/rooms/{id}/members/{userId}", s.authMiddleware(s.removeRoomMember))
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.authMiddleware(s.getRoomMessages))
	mux.HandleFunc("POST /api/rooms/{id}/messages", s.authMiddleware(s.sendGroupMessage))
	mux.HandleFunc("POST /api/rooms/{id}/read", s.authMiddleware(s.markGroupMessagesRead))

	mux.HandleFunc("POST /api/notifications/subscribe", s.authMiddleware(s.saveSubscription))
	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("GET /api/notifications/unread", s.authMiddleware(s.getUnreadNotificationCount))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))

	mux.HandleFunc("POST /api/tasks/assigned", s.authMiddleware(s.requireRole(s.taskAssigned, auth.RoleService, auth.RoleAdmin)))
	mux.HandleFunc("POST /api/tasks/status", s.authMiddleware(s.requireRole(s.taskStatusChanged, auth.RoleService, auth.RoleAdmin)))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *App) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
