package api

import (
	"net/http"

	"github.com/wardlight/wardlight/internal/pipeline"
	"github.com/wardlight/wardlight/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	runtime *Runtime,
) {
	routes.Register(
		mux,
		domain.Flags.Handler().Routes(),
		pipeline.NewHandler(domain.Pipeline, runtime.Logger).Routes(),
	)
}
