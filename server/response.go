package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/speechgate/errors"
)

// RespondWithError writes err as the structured error body. Errors that are
// not AppErrors become a generic 500.
func RespondWithError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, appErr.ToResponse())
}

// RespondOK sends a 200 response with body as-is.
func RespondOK(c *gin.Context, body any) {
	c.JSON(http.StatusOK, body)
}

// RespondCreated sends a 201 response with body as-is.
func RespondCreated(c *gin.Context, body any) {
	c.JSON(http.StatusCreated, body)
}
