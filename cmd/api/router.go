package api

import (
	jobDelivery "recruitpulse-backend/internal/job/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, jobHandler *jobDelivery.JobHandler, callbackHandler *jobDelivery.CallbackHandler) {
	// Health check at the root as well, for the browser extension's probe
	r.GET("/", jobHandler.Health)
	r.GET("/downloads/:filename", jobHandler.Download)

	api := r.Group("/api")
	{
		api.GET("/health", jobHandler.Health)

		jobs := api.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.POST("", jobHandler.UpsertJob)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.POST("/:id/draft", jobHandler.CreateDraft)
			jobs.POST("/:id/update-draft", jobHandler.UpdateDraft)
		}

		api.POST("/followups/run", jobHandler.RunFollowUps)

		if callbackHandler != nil {
			api.POST("/telegram/webhook", callbackHandler.Webhook)
		}
	}
}
