package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	mux.Handle("/api/", services.API.Router())
	mux.Handle("/ws", services.WS)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})
	mux.HandleFunc("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(services.Connections.Stats())
	})
}
