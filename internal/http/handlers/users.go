package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/orderhub/internal/actorctx"
	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/config"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/service"
	"github.com/gin-gonic/gin"
)

type UserAPI interface {
	Create(ctx context.Context, in service.CreateUserInput) (user.User, error)
	List(ctx context.Context, f user.ListFilter) ([]user.Listed, int, error)
	Get(ctx context.Context, id string) (user.User, error)
	Update(ctx context.Context, id string, in service.UpdateUserInput) (user.User, error)
	Delete(ctx context.Context, id string) error
}

type UsersHandler struct {
	svc     UserAPI
	timeout time.Duration
}

func NewUsersHandler(svc UserAPI, timeout time.Duration) *UsersHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &UsersHandler{svc: svc, timeout: timeout}
}

type CreateUserRequest struct {
	Email    string      `json:"email" binding:"required,email"`
	Password string      `json:"password" binding:"required,password"`
	Username string      `json:"username" binding:"omitempty,min=3,max=64"`
	Role     user.Role   `json:"role" binding:"omitempty,oneof=user admin"`
	Status   user.Status `json:"status" binding:"omitempty,oneof=active pending"`
	Name     string      `json:"name" binding:"omitempty,max=100"`
	Avatar   string      `json:"avatar" binding:"omitempty,url"`
	Note     string      `json:"note" binding:"omitempty,max=500"`
}

// UpdateUserRequest has no username field; a username in the body is ignored.
type UpdateUserRequest struct {
	Email    *string      `json:"email" binding:"omitempty,email"`
	Password *string      `json:"password" binding:"omitempty,password"`
	Role     *user.Role   `json:"role" binding:"omitempty,oneof=user admin"`
	Status   *user.Status `json:"status" binding:"omitempty,oneof=active pending"`
	Name     *string      `json:"name" binding:"omitempty,max=100"`
	Avatar   *string      `json:"avatar" binding:"omitempty,url"`
	Note     *string      `json:"note" binding:"omitempty,max=500"`
}

type ListUsersQuery struct {
	Name     string `form:"name" json:"name"`
	Role     string `form:"role" json:"role" binding:"omitempty,oneof=user admin"`
	Search   string `form:"search" json:"search" binding:"omitempty,min=2"`
	SortBy   string `form:"sortBy" json:"sortBy"`
	SortType string `form:"sortType" json:"sortType" binding:"omitempty,oneof=asc desc"`
	Limit    int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=100"`
	Page     int    `form:"page" json:"page" binding:"omitempty,min=1"`
}

type ListUsersResponse struct {
	Results      []user.Listed `json:"results"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	TotalPages   int           `json:"totalPages"`
	TotalResults int           `json:"totalResults"`
}

const (
	defaultUsersLimit = 10
	maxUsersLimit     = 100
)

func (q ListUsersQuery) filter() user.ListFilter {
	f := user.ListFilter{
		Search:   strings.TrimSpace(q.Search),
		SortBy:   q.SortBy,
		SortDesc: q.SortType == "desc",
		Limit:    q.Limit,
		Page:     q.Page,
	}

	if f.Limit <= 0 {
		f.Limit = defaultUsersLimit
	}
	if f.Limit > maxUsersLimit {
		f.Limit = maxUsersLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	if name := strings.TrimSpace(q.Name); name != "" {
		f.Name = &name
	}
	if q.Role != "" {
		role := user.Role(q.Role)
		f.Role = &role
	}

	return f
}

func (h *UsersHandler) Create(ctx *gin.Context) {
	var req CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	u, err := h.svc.Create(cctx, service.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Role:     req.Role,
		Status:   req.Status,
		Name:     req.Name,
		Avatar:   req.Avatar,
		Note:     req.Note,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, u)
}

func (h *UsersHandler) List(ctx *gin.Context) {
	var q ListUsersQuery

	if !BindQuery(ctx, &q) {
		return
	}

	f := q.filter()

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	users, total, err := h.svc.List(cctx, f)
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, ListUsersResponse{
		Results:      users,
		Page:         f.Page,
		Limit:        f.Limit,
		TotalPages:   (total + f.Limit - 1) / f.Limit,
		TotalResults: total,
	})
}

func (h *UsersHandler) Get(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	u, err := h.svc.Get(cctx, ctx.Param("userId"))
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u)
}

func (h *UsersHandler) Me(ctx *gin.Context) {
	actor, ok := actorctx.UserFrom(ctx.Request.Context())
	if !ok {
		RespondAppError(ctx, apperr.Unauthenticated("unauthorized", "Please authenticate"))
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, actor)
}

func (h *UsersHandler) Update(ctx *gin.Context) {
	var req UpdateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	u, err := h.svc.Update(cctx, ctx.Param("userId"), service.UpdateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Avatar:   req.Avatar,
		Note:     req.Note,
		Role:     req.Role,
		Status:   req.Status,
	})
	if err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, u)
}

func (h *UsersHandler) Delete(ctx *gin.Context) {
	cctx, cancel := config.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	if err := h.svc.Delete(cctx, ctx.Param("userId")); err != nil {
		RespondAppError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
