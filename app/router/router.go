package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/app/controllers"
	"github.com/aihub/rag-ingest/app/middleware"
	"github.com/aihub/rag-ingest/internal/repository"
)

// Dependencies 路由需要的服务
type Dependencies struct {
	Uploads   controllers.DocumentSubmitter
	Documents repository.DocumentStore
	Fragments repository.FragmentStore
	Retrieval controllers.Searcher
	Checks    map[string]controllers.Check
	// Gatherer 为nil时不暴露/metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Init registers all routes. Must be called after the container is built.
func Init(deps Dependencies) {
	web.InsertFilter("/*", web.BeforeRouter, middleware.RequestStart)
	web.InsertFilter("/*", web.FinishRouter, middleware.AccessLog(deps.Logger), web.WithReturnOnOutput(false))

	web.Router("/health", &controllers.HealthController{Checks: deps.Checks}, "get:Health")

	documentController := &controllers.DocumentController{
		Uploads:   deps.Uploads,
		Documents: deps.Documents,
		Fragments: deps.Fragments,
	}
	web.Router("/api/documents", documentController, "post:Create")
	web.Router("/api/documents/:id", documentController, "get:Get")
	web.Router("/api/documents/:id/fragments", documentController, "get:ListFragments")

	web.Router("/api/search", &controllers.SearchController{Retrieval: deps.Retrieval}, "post:Search")

	if deps.Gatherer != nil {
		web.Handler("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
}
