package handlers

import (
	"connectly/apperr"
	"connectly/models"
	"connectly/services"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expiresAt"`
}

func (h *Handler) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	user, err := h.Users.Register(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp, err := h.issue(user)
	if err != nil {
		h.fail(c, err)
		return
	}
	createdMessage(c, "User registered successfully", resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.badRequest(c, "Please provide email and password")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	user, err := h.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	resp, err := h.issue(user)
	if err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Login successful", resp)
}

func (h *Handler) issue(user *models.User) (*authResponse, error) {
	token, expires, err := h.Tokens.Generate(user.ID.Hex())
	if err != nil {
		return nil, apperr.Internal("sign token", err)
	}
	return &authResponse{User: user, Token: token, ExpiresAt: expires.Unix()}, nil
}

func (h *Handler) Me(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	user, err := h.Users.Get(ctx, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"user": user})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	user, err := h.Users.UpdateProfile(ctx, me, upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Profile updated successfully", gin.H{"user": user})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Users.ChangePassword(ctx, me, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Password updated successfully", nil)
}

func (h *Handler) DeleteAccount(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req DeleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Please provide your password to confirm deletion")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Users.DeleteAccount(ctx, me, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Account deleted successfully", nil)
}
