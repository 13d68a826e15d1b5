package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-workflow/internal/domain/workflow"
)

// statusForKind maps workflow error kinds onto HTTP status codes
var statusForKind = map[workflow.Kind]int{
	workflow.KindValidation:    http.StatusBadRequest,
	workflow.KindAuthorization: http.StatusForbidden,
	workflow.KindNotFound:      http.StatusNotFound,
	workflow.KindConflict:      http.StatusConflict,
	workflow.KindTerminalState: http.StatusUnprocessableEntity,
	workflow.KindInternal:      http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for an error
func StatusFor(err error) int {
	if status, ok := statusForKind[workflow.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err in the response envelope. Internal failures are
// logged and their detail is withheld from the client.
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := workflow.KindOf(err)
	status := StatusFor(err)

	message := err.Error()
	var we *workflow.Error
	if errors.As(err, &we) && we.Detail != "" {
		message = we.Detail
	}
	if kind == workflow.KindInternal {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		message = "internal error"
	}

	c.JSON(status, Response{
		Success: false,
		Error:   message,
		Code:    string(kind),
	})
}

// badRequest renders a malformed-input response
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   message,
		Code:    string(workflow.KindValidation),
	})
}
