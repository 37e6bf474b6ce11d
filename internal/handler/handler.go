package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/auth"
	"github.com/abhishek622/evalengine/internal/diagnostics"
	"github.com/abhishek622/evalengine/internal/evaluation"
	"github.com/abhishek622/evalengine/internal/session"
	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/abhishek622/evalengine/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimsKey is the gin context key holding the verified *auth.UserClaims.
const ClaimsKey = "claims"

// Scorer grades an answer to a question.
type Scorer interface {
	Score(ctx context.Context, q model.Question, answer string) (model.Feedback, string, error)
}

type Handler struct {
	Logger      *zap.Logger
	Evaluations *evaluation.Service
	Sessions    *session.Service
	Diagnostics *diagnostics.Service
	Scorer      Scorer
	TokenMaker  *auth.JWTMaker
}

// GetClaimsFromContext returns the verified caller, or nil when the request
// was not authenticated.
func (h *Handler) GetClaimsFromContext(c *gin.Context) *auth.UserClaims {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil
	}
	claims, ok := v.(*auth.UserClaims)
	if !ok {
		return nil
	}
	return claims
}

func (h *Handler) callerField(c *gin.Context) zap.Field {
	if claims := h.GetClaimsFromContext(c); claims != nil {
		return zap.String("caller", claims.UserID)
	}
	return zap.Skip()
}

type errorDetails struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Problems []string          `json:"problems,omitempty"`
}

// respondError writes err using the status that matches its code.
func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		h.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.InternalError(c, "")
		return
	}

	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(appErr.Code)),
			zap.Error(err),
		)
	}

	var details any
	if len(appErr.Metadata) > 0 || len(appErr.Problems) > 0 {
		details = errorDetails{Metadata: appErr.Metadata, Problems: appErr.Problems}
	}
	message := appErr.Message
	if appErr.Code == apperr.CodeInfrastructure {
		message = "service temporarily unavailable"
	}
	response.Fail(c, status, string(appErr.Code), message, details)
}

func parseApplicationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid application id")
		return 0, false
	}
	return id, true
}
