package admin

import (
	"strings"

	"github.com/pixvend/internal/constants"
	"github.com/pixvend/internal/http/response"

	"github.com/gin-gonic/gin"
)

// LoginRequest 运营登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 运营账号登录，成功后签发 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.UserRepo.GetByEmail(email)
	if err != nil {
		respondError(c, response.CodeInternal, "登录失败", err)
		return
	}
	if user == nil {
		respondError(c, response.CodeUnauthorized, "邮箱或密码错误", nil)
		return
	}
	if err := h.AuthService.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		requestLog(c).Warnw("admin_login_password_mismatch", "email", email)
		respondError(c, response.CodeUnauthorized, "邮箱或密码错误", nil)
		return
	}
	if strings.ToLower(strings.TrimSpace(user.Status)) != constants.UserStatusActive {
		respondError(c, response.CodeForbidden, "账号已被禁用", nil)
		return
	}
	token, expiresAt, err := h.AuthService.GenerateToken(user.Email)
	if err != nil {
		respondError(c, response.CodeInternal, "登录失败", err)
		return
	}
	requestLog(c).Infow("admin_login_success", "email", user.Email)
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"email":      user.Email,
	})
}
