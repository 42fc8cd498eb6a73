package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	callhandler "github.com/zhouzirui/helpline/backend/internal/handler/call"
	wordhandler "github.com/zhouzirui/helpline/backend/internal/handler/word"
	middlewarePkg "github.com/zhouzirui/helpline/backend/internal/middleware"
	callservice "github.com/zhouzirui/helpline/backend/internal/service/call"
	wordservice "github.com/zhouzirui/helpline/backend/internal/service/word"
)

// NewRouter wires HTTP and websocket routes to the core services.
func NewRouter(callSvc *callservice.Service, wordSvc *wordservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Caller/operator relay plus the operator HTTP surface.
	wsHandler := callhandler.NewWebSocketHandler(callSvc)
	wsHandler.RegisterWebSocketRoutes(r)

	callHandler := callhandler.New(callSvc)
	callHandler.RegisterRoutes(r)

	// Word triage is optional glue; it only mounts when a chat model is
	// configured.
	if wordSvc != nil {
		wordHandler := wordhandler.New(wordSvc)
		wordHandler.RegisterRoutes(r)
	}

	return r
}
