package rest

import (
	"net/http"

	"github.com/chatmod/chatmod/internal/corpus"
	"github.com/chatmod/chatmod/internal/feedback"
	"github.com/chatmod/chatmod/internal/finetune"
	"github.com/chatmod/chatmod/internal/pipeline"
	"github.com/chatmod/chatmod/internal/policy"
	"github.com/chatmod/chatmod/internal/rest/handler"
	"github.com/klauspost/compress/gzhttp"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Deps bundles the core services the REST surface exposes.
type Deps struct {
	Policy       *policy.Store
	Corpus       *corpus.Store
	Ledger       *feedback.Ledger
	Promoter     *feedback.Promoter
	Reconciler   *feedback.Reconciler
	Pipeline     *pipeline.Pipeline
	Orchestrator *finetune.Orchestrator
}

// NewServer creates the REST API handler.
func NewServer(deps *Deps, logger *zap.Logger) http.Handler {
	policyHandler := handler.NewPolicyHandler(deps.Policy, logger)
	trainingHandler := handler.NewTrainingHandler(deps.Corpus, deps.Reconciler, logger)
	chatHandler := handler.NewChatHandler(deps.Pipeline, logger)
	feedbackHandler := handler.NewFeedbackHandler(
		deps.Ledger, deps.Promoter, deps.Reconciler, deps.Corpus, deps.Pipeline, logger)
	fineTuneHandler := handler.NewFineTuneHandler(deps.Orchestrator, logger)

	router := bunrouter.New(
		bunrouter.Use(requestLogger(logger.Named("rest"))),
	)

	router.GET("/rules", policyHandler.GetRules)
	router.PUT("/rules", policyHandler.PutRules)

	router.WithGroup("/training-data", func(g *bunrouter.Group) {
		g.GET("", trainingHandler.ListExamples)
		g.POST("", trainingHandler.AddExample)
		g.GET("/asa", trainingHandler.ListASA)
		g.POST("/asa", trainingHandler.AddASA)
		g.PUT("/asa/:index", trainingHandler.UpdateASA)
		g.DELETE("/asa/:index", trainingHandler.DeleteASA)
		g.PUT("/:index", trainingHandler.UpdateExample)
		g.DELETE("/:index", trainingHandler.DeleteExample)
	})

	router.POST("/test-chat", chatHandler.TestChat)

	router.WithGroup("/feedback", func(g *bunrouter.Group) {
		g.GET("", feedbackHandler.List)
		g.POST("", feedbackHandler.Create)
		g.GET("/stats", feedbackHandler.Stats)
		g.GET("/:id", feedbackHandler.Get)
		g.PUT("/:id", feedbackHandler.Update)
		g.DELETE("/:id", feedbackHandler.Delete)
		g.POST("/:id/generate-variations", feedbackHandler.GenerateVariations)
		g.POST("/:id/add-variations", feedbackHandler.AddVariations)
	})

	router.WithGroup("/fine-tuning", func(g *bunrouter.Group) {
		g.GET("/status", fineTuneHandler.Status)
		g.GET("/stats", fineTuneHandler.Stats)
		g.GET("/jobs", fineTuneHandler.Jobs)
		g.GET("/export-jsonl", fineTuneHandler.ExportJSONL)
		g.GET("/filtered", fineTuneHandler.Filtered)
		g.POST("/retrain", fineTuneHandler.Retrain)
	})

	return gzhttp.GzipHandler(router)
}
