package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/openmat/courtcast/internal/display"
	"github.com/openmat/courtcast/internal/display/gateway"
)

func setupServer(services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// WebSocket endpoint for display/control clients.
	wsHandler := gateway.NewWebSocketHandler(services.Connections)
	wsHandler.RegisterRoutes(mux)

	// Re-seed endpoint for (re)connecting clients.
	stateHandler := display.NewStateHandler(services.Display)
	stateHandler.RegisterRoutes(mux)

	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pushes, failures := services.Pusher.Counts()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","active_timers":%d,"fallback_pushes":%d,"fallback_failures":%d}`,
			services.Timers.Active(), pushes, failures)
	})
}
