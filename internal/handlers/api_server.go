// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/codebreak/internal/dispatcher"
	"github.com/jason-s-yu/codebreak/internal/middleware"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// Server exposes the room directory over HTTP and WebSocket.
type Server struct {
	Directory      *room.Directory
	Dispatcher     *dispatcher.Dispatcher
	AllowedOrigins []string
	Logger         *logrus.Logger
}

// Routes builds the router: a heartbeat, the public room summary and the
// WebSocket endpoint.
func (s *Server) Routes() http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(s.Logger))
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/rooms/{code}", s.RoomSummaryHandler)
	r.Get("/ws", WSHandler(s.Logger, s.Dispatcher, wsOriginPatterns(origins)))
	return r
}

// RoomSummaryHandler serves the public summary of one room.
func (s *Server) RoomSummaryHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.Directory.Get(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, models.ErrRoomNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rm.Summary())
}

// wsOriginPatterns turns CORS origins into host patterns for the upgrade check.
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := urlHost(o); err == nil && u != "" {
			patterns = append(patterns, u)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
