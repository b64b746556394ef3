package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/orderhub/internal/actorctx"
	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, in service.LoginInput) (service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (auth.Pair, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	SendVerificationEmail(ctx context.Context, u user.User) error
	VerifyEmail(ctx context.Context, verifyToken string) error
}

type AuthHandler struct {
	svc     AuthAPI
	timeout time.Duration
	// secure cookies outside dev
	secureCookie bool
}

func NewAuthHandler(svc AuthAPI, timeout time.Duration, env string) *AuthHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AuthHandler{
		svc:          svc,
		timeout:      timeout,
		secureCookie: env == "prod",
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,password"`
	Username string `json:"username" binding:"omitempty,min=3,max=64"`
	Name     string `json:"name" binding:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,password"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.svc.Register(cctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Name:     req.Name,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.setRefreshCookie(ctx, res.Tokens.Refresh)
	ctx.JSON(http.StatusCreated, res)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if req.Email == "" && req.Username == "" {
		respondMissing(ctx, "Invalid request body", "email")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	res, err := h.svc.Login(cctx, service.LoginInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.setRefreshCookie(ctx, res.Tokens.Refresh)
	ctx.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, ok := h.refreshTokenFrom(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.Logout(cctx, raw); err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.clearRefreshCookie(ctx)
	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) RefreshTokens(ctx *gin.Context) {
	raw, ok := h.refreshTokenFrom(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	pair, err := h.svc.Refresh(cctx, raw)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	h.setRefreshCookie(ctx, pair.Refresh)
	ctx.JSON(http.StatusOK, gin.H{"tokens": pair})
}

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req ForgotPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.ForgotPassword(cctx, req.Email); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	resetToken := ctx.Query("token")
	if resetToken == "" {
		respondMissing(ctx, "Invalid query parameters", "token")
		return
	}

	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.ResetPassword(cctx, resetToken, req.Password); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) SendVerificationEmail(ctx *gin.Context) {
	actor, ok := actorctx.UserFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.Unauthenticated("unauthorized", "Please authenticate"))
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.SendVerificationEmail(cctx, actor); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	verifyToken := ctx.Query("token")
	if verifyToken == "" {
		respondMissing(ctx, "Invalid query parameters", "token")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.VerifyEmail(cctx, verifyToken); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// refreshTokenFrom prefers the body, then the HttpOnly cookie. It writes the
// 400 itself when neither carries a token.
func (h *AuthHandler) refreshTokenFrom(ctx *gin.Context) (string, bool) {
	var req RefreshRequest

	if ctx.Request.ContentLength != 0 {
		if !BindJSON(ctx, &req) {
			return "", false
		}
	}

	if req.RefreshToken != "" {
		return req.RefreshToken, true
	}

	if raw, err := ctx.Cookie(refreshCookieName); err == nil && raw != "" {
		return raw, true
	}

	respondMissing(ctx, "Invalid request body", "refreshToken")
	return "", false
}

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/v1/auth"
)

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, refresh auth.Issued) {
	maxAge := int(time.Until(refresh.Expires).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		refresh.Token,
		maxAge,
		refreshCookiePath,
		"",
		h.secureCookie,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookie, true)
}
