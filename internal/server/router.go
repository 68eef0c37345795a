package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ripple-chat/internal/domain"
	ripple_errors "ripple-chat/pkg/errors"
	"ripple-chat/pkg/logger"
)

// Router builds the gin engine with the HTTP API and the websocket endpoint.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), loggingMiddleware(s.log))

	api := r.Group("/api")
	{
		api.POST("/auth/register", s.handleRegister)
		api.POST("/auth/signin", s.handleSignIn)

		authed := api.Group("", s.authMiddleware())
		{
			authed.GET("/users", s.handleListUsers)
			authed.POST("/chat/direct", s.handleDirectChat)
			authed.POST("/chat/group", s.handleGroupChat)
			authed.POST("/chat/:id/members", s.handleAddMembers)
			authed.DELETE("/chat/:id/members", s.handleRemoveMembers)
		}
	}

	r.GET("/ws", s.handleSocket)
	return r
}

func loggingMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		l.Infof("%s %s %d %s", method, path, status, latency.String())
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.tokens.Parse(extractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("userName", claims.Name)
		c.Next()
	}
}

func extractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return c.Query("token")
	}
	return strings.TrimSpace(parts[1])
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("registration failed", "REQUEST_FAILED"))
		return
	}

	account := Account{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.CreateUser(c.Request.Context(), &account); err != nil {
		if errors.Is(err, ripple_errors.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, NewErrorResponse("email already registered", "ALREADY_EXISTS"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	s.respondAuth(c, account)
}

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	account, err := s.repo.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !checkPassword(account.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid credentials", "UNAUTHORIZED"))
		return
	}

	s.respondAuth(c, account)
}

func (s *Server) respondAuth(c *gin.Context, account Account) {
	token, err := s.tokens.Issue(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse("token issue failed", "REQUEST_FAILED"))
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponse(authResponse{
		Token: token,
		User: domain.User{
			ID:        account.ID,
			Name:      account.Name,
			Email:     account.Email,
			AvatarURL: account.AvatarURL,
		},
	}))
}

// wireUser is the roster wire shape: ids go out as "_id", which the client
// normalizes back to "id".
type wireUser struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"profilePicUrl,omitempty"`
	IsOnline  bool   `json:"isOnline"`
}

type listUsersResponse struct {
	Users []wireUser `json:"users"`
}

func (s *Server) handleListUsers(c *gin.Context) {
	accounts, err := s.repo.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	var online map[string]bool
	if s.presence != nil {
		online, err = s.presence.OnlineUsers(c.Request.Context())
		if err != nil {
			s.log.Warnf("presence lookup failed: %v", err)
		}
	}

	users := make([]wireUser, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, wireUser{
			ID:        account.ID,
			Name:      account.Name,
			Email:     account.Email,
			AvatarURL: account.AvatarURL,
			IsOnline:  online[account.ID],
		})
	}
	c.JSON(http.StatusOK, NewSuccessResponse(listUsersResponse{Users: users}))
}

type directChatRequest struct {
	UserID      string `json:"userId"`
	OtherUserID string `json:"otherUserId" binding:"required"`
}

type chatLookupResponse struct {
	ID        string    `json:"_id"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status,omitempty"`
}

func (s *Server) handleDirectChat(c *gin.Context) {
	var req directChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID := c.GetString("userID")
	chat, created, err := s.repo.EnsureDirectChat(c.Request.Context(), userID, req.OtherUserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	status := "existing"
	if created {
		status = "created"
	}
	c.JSON(http.StatusOK, NewSuccessResponse(chatLookupResponse{
		ID:        chat.ID,
		CreatedAt: chat.CreatedAt,
		Status:    status,
	}))
}

type groupChatRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"memberIds" binding:"required,min=1"`
}

func (s *Server) handleGroupChat(c *gin.Context) {
	var req groupChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID := c.GetString("userID")
	members := req.MemberIDs
	hasCreator := false
	for _, id := range members {
		if id == userID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		members = append(members, userID)
	}

	chat := ChatRecord{
		ID:        "group-" + uuid.New().String(),
		Name:      req.Name,
		Kind:      domain.ChatGroup,
		MemberIDs: members,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateGroupChat(c.Request.Context(), &chat); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(chatLookupResponse{
		ID:        chat.ID,
		CreatedAt: chat.CreatedAt,
	}))
}

type membersRequest struct {
	UserIDs []string `json:"userIds" binding:"required,min=1"`
}

func (s *Server) handleAddMembers(c *gin.Context) {
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	chatID := c.Param("id")
	if err := s.repo.AddChatMembers(c.Request.Context(), chatID, req.UserIDs); err != nil {
		if errors.Is(err, ripple_errors.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("chat not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	s.NotifyMembersAdded(chatID, req.UserIDs)
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"chatId": chatID}))
}

func (s *Server) handleRemoveMembers(c *gin.Context) {
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	chatID := c.Param("id")
	if err := s.repo.RemoveChatMembers(c.Request.Context(), chatID, req.UserIDs); err != nil {
		if errors.Is(err, ripple_errors.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, NewErrorResponse("chat not found", "NOT_FOUND"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error(), "REQUEST_FAILED"))
		return
	}

	s.NotifyMembersRemoved(chatID, req.UserIDs)
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"chatId": chatID}))
}

func (s *Server) handleSocket(c *gin.Context) {
	claims, err := s.tokens.Parse(extractBearer(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := newClient(s, conn, claims.UserID, claims.Name)
	s.connect(client)

	go client.writePump()
	client.readPump()
}
