package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/authgate/internal/http/middlewares"
)

// ProtectedHome is only reachable once the route gate has let an admin
// through.
func ProtectedHome(ctx *gin.Context) {
	claims, _ := middlewares.SessionFromContext(ctx)

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Admin area",
		"session": NewSessionView(claims),
	})
}
