package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/sheetscan/internal/common"
	"github.com/gin-gonic/gin"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{common.ErrMissingIdentifiers, http.StatusBadRequest},
	{common.ErrOwnerNotFound, http.StatusBadRequest},
	{common.ErrorIncorrectPayload, http.StatusBadRequest},
	{common.ErrInvalidPageName, http.StatusBadRequest},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrInvalidTransition, http.StatusConflict},
	{common.ErrStatusConflict, http.StatusConflict},
	{common.ErrNotMergeable, http.StatusConflict},
	{common.ErrTemplateTimeout, http.StatusGatewayTimeout},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}. Server side failures are logged and
// their detail is not echoed back.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = common.ErrorInternal.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
