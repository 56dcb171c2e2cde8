// Copyright (C) 2025 Selaras AI (engineering@selaras.id)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/selaras-ai/concierge/services/assistant"
	"github.com/selaras-ai/concierge/services/assistant/audit"
	"github.com/selaras-ai/concierge/services/assistant/calibration"
	"github.com/selaras-ai/concierge/services/assistant/handlers"
	"github.com/selaras-ai/concierge/services/assistant/observability"
	"github.com/selaras-ai/concierge/services/assistant/retrieval"
)

// SetupRoutes registers every HTTP route on the router.
func SetupRoutes(router *gin.Engine, engine *assistant.Engine, loader *calibration.Loader,
	sink audit.Sink, client *weaviate.Client, embedder retrieval.EmbeddingProvider,
	metrics *observability.AnswerMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/answer", handlers.HandleAnswer(engine, metrics))
		v1.POST("/answer/stream", handlers.HandleAnswerStream(engine, metrics))
		v1.GET("/answer/:requestId/trace", handlers.HandleGetTrace(sink))

		knowledge := v1.Group("/knowledge")
		{
			knowledge.POST("/documents", handlers.CreateDocument(client, embedder))
			knowledge.GET("/documents", handlers.ListDocuments(client))
			knowledge.DELETE("/document", handlers.DeleteBySource(client))
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/rules", handlers.HandleRulesStatus(loader))
			admin.POST("/rules/refresh", handlers.HandleRulesRefresh(loader))
		}
	}
}
