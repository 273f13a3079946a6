package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go-chatbot/internal/authproxy"
	"go-chatbot/internal/chat"
	"go-chatbot/internal/googleauth"
	"go-chatbot/internal/health"
	myMiddleware "go-chatbot/internal/middleware"
)

func baseRouter(logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(myMiddleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(myMiddleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func apiRouter(logger zerolog.Logger, chatHandler *chat.Handler, proxy *authproxy.Handler, auth *myMiddleware.AuthMiddleware, hc http.Handler) *chi.Mux {
	r := baseRouter(logger)
	r.Method(http.MethodGet, "/health", hc)

	r.Post("/Auth/login", proxy.Login)
	r.Post("/Auth/logout", proxy.Logout)
	r.Get("/initialize/{user}", chatHandler.Initialize)

	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Post("/Chat/PostMessage", chatHandler.PostMessage)
		r.Get("/Chat/ChatHistory", chatHandler.ChatHistory)
	})
	return r
}

func authRouter(logger zerolog.Logger, h *googleauth.Handler, hc *health.Handler) *chi.Mux {
	r := baseRouter(logger)
	r.Method(http.MethodGet, "/health", hc)

	r.Route("/GoogleAuth", func(r chi.Router) {
		r.Post("/Login", h.Login)
		r.Get("/VerifyToken", h.VerifyToken)
		r.Post("/Logout", h.Logout)
	})
	return r
}
