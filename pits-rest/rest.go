// Package pitsrest provides the HTTP surface shared by the administrative
// endpoints, with CORS support and common middleware.
package pitsrest

import (
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
)

func Middlewares(service pitscli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(pitscli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

// Webserver serves the routes over a local listener in console mode, or
// behind API Gateway otherwise.
func Webserver(service pitscli.Service, routes chi.Router) error {
	logger := pitscli.Logger(service)

	if pitscli.CommonOpts.Console {
		logger.Info().Int("port", pitscli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", pitscli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, pitscli.CommonOpts.Env))
	return nil
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
