package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/engine"
)

// respondError maps engine errors onto HTTP statuses: validation
// failures are the client's fault, state conflicts are 409, everything
// else is a server fault.
func respondError(c *gin.Context, err error) {
	c.Error(err)

	var invalid *channel.InvalidParameterError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, engine.ErrAlreadyActive),
		errors.Is(err, engine.ErrAlreadyTranscoding),
		errors.Is(err, engine.ErrNotReady),
		errors.Is(err, engine.ErrNoSource):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
	}
}
