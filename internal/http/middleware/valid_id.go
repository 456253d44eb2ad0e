package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const ChannelIDKey = "channel_id"

// RequireValidChannelID ensures the path param ":id" is an integer
// inside the channel pool and stores it in the context.
func RequireValidChannelID(maxChannels int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id < 0 || id >= maxChannels {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid channel id"})
			return
		}
		c.Set(ChannelIDKey, id)
		c.Next()
	}
}

// ChannelID retrieves the validated channel ID stored by
// RequireValidChannelID.
func ChannelID(c *gin.Context) int {
	return c.GetInt(ChannelIDKey)
}
