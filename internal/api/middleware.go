package api

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/olympiad/internal/domain"
	"github.com/victornm/olympiad/internal/errors"
)

const participantKey = "participant"

func (a *API) authenticate(c *gin.Context) {
	h := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" {
		renderError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	p, err := a.tokens.Parse(token)
	if err != nil {
		renderError(c, err)
		return
	}

	c.Set(participantKey, *p)
	c.Next()
}

func participantFrom(c *gin.Context) domain.Participant {
	p, _ := c.MustGet(participantKey).(domain.Participant)
	return p
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	if e.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
