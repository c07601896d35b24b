package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"mes-backend/internal/model"
	"mes-backend/internal/store"
)

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// ListUsers handles GET /users.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.writeStoreError(c, err)
		return
	}

	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = userResponse{
			ID:        u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Role:      u.Role,
			CreatedAt: u.CreatedAt.Format(dateLayout),
		}
	}
	c.JSON(http.StatusOK, out)
}

type createUserRequest struct {
	Username  string `json:"username" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

// CreateUser handles POST /users and POST /user.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}

	u := model.User{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		CreatedAt: time.Now().UTC(),
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid password: " + err.Error()})
			return
		}
		s := string(hash)
		u.PasswordHash = &s
	}

	if err := h.store.CreateUser(c.Request.Context(), &u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
			return
		}
		h.writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "New user added successfully!", "id": u.ID})
}
