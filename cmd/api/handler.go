package api

import (
	"net/http"
	"time"

	jobDelivery "recruitpulse-backend/internal/job/delivery"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	jobHandler      *jobDelivery.JobHandler
	callbackHandler *jobDelivery.CallbackHandler
}

// NewHandler wires the HTTP surface. callbackHandler may be nil when no
// Telegram bot is configured.
func NewHandler(jobHandler *jobDelivery.JobHandler, callbackHandler *jobDelivery.CallbackHandler) *Handler {
	return &Handler{
		jobHandler:      jobHandler,
		callbackHandler: callbackHandler,
	}
}

// Router builds the gin engine with CORS and every route
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.jobHandler, h.callbackHandler)
	return r
}

// Server returns the HTTP server for addr. Draft workflows can take a while,
// so only the header read is bounded.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
