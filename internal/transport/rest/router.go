package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"wellpath/internal/service"
	"wellpath/internal/transport/rest/handler"
	"wellpath/internal/transport/rest/middleware"
	"wellpath/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService      *service.AuthService
	InterviewService *service.InterviewService
	CaseService      *service.CaseService
	WSHub            *ws.Hub
	AllowedOrigins   []string
	Logger           zerolog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	interviewHandler := handler.NewInterviewHandler(c.InterviewService)
	caseHandler := handler.NewCaseHandler(c.CaseService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.InterviewService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(c.Logger))
	r.Use(middleware.Logger(c.Logger))
	r.Use(corsMiddleware(c.AllowedOrigins))

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/interviews/{id}", wsHandler.InterviewWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Owner routes (require subject token)
	owner := v1.NewRoute().Subrouter()
	owner.Use(authMW.RequireOwner)

	owner.HandleFunc("/interviews", interviewHandler.Start).Methods("POST", "OPTIONS")
	owner.HandleFunc("/interviews", interviewHandler.List).Methods("GET", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/questions", interviewHandler.Questions).Methods("GET", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/question/current", interviewHandler.CurrentQuestion).Methods("GET", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/answers", interviewHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/next", interviewHandler.Next).Methods("POST", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/conclusion", interviewHandler.GenerateConclusion).Methods("POST", "OPTIONS")
	owner.HandleFunc("/interviews/{id}/conclusion", interviewHandler.GetConclusion).Methods("GET", "OPTIONS")

	owner.HandleFunc("/cases", caseHandler.Create).Methods("POST", "OPTIONS")
	owner.HandleFunc("/cases", caseHandler.List).Methods("GET", "OPTIONS")
	owner.HandleFunc("/cases/{id}", caseHandler.Get).Methods("GET", "OPTIONS")
	owner.HandleFunc("/cases/{id}", caseHandler.Update).Methods("PUT", "OPTIONS")
	owner.HandleFunc("/cases/{id}", caseHandler.Delete).Methods("DELETE", "OPTIONS")
	owner.HandleFunc("/cases/{id}/close", caseHandler.Close).Methods("POST", "OPTIONS")
	owner.HandleFunc("/cases/{id}/reopen", caseHandler.Reopen).Methods("POST", "OPTIONS")
	owner.HandleFunc("/cases/{id}/interviews", caseHandler.Interviews).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", "Authorization", middleware.RequestIDHeader}, ", "))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
