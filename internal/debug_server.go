package internal

import (
	"citychat/domain"
	"citychat/observability"
	"citychat/repositories"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type historyRow struct {
	SenderUserID string    `json:"sender_user_id"`
	Message      string    `json:"message"`
	SortKey      string    `json:"sort_key"`
	At           time.Time `json:"at"`
}

// DebugServer serves read-only introspection endpoints. It runs as a supervised worker.
type DebugServer struct {
	log               *slog.Logger
	address           string
	monitoring        *observability.Monitoring
	historyRepository repositories.IHistoryRepository
	historyLimit      int
}

func NewDebugServer(log *slog.Logger, address string, monitoring *observability.Monitoring,
	historyRepository repositories.IHistoryRepository, historyLimit int) *DebugServer {
	return &DebugServer{
		log:               log,
		address:           address,
		monitoring:        monitoring,
		historyRepository: historyRepository,
		historyLimit:      historyLimit,
	}
}

func (s *DebugServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/debug/stats", s.handleStats)
	r.Get("/debug/rooms", s.handleRooms)
	r.Get("/debug/rooms/{room}/history", s.handleHistory)
	return r
}

// Run serves until ctx is done, then shuts the server down.
func (s *DebugServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	s.log.Info("Starting debug server", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *DebugServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.monitoring.Snapshot())
}

func (s *DebugServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.historyRepository.Rooms(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *DebugServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	room := domain.RoomName(chi.URLParam(r, "room"))
	if err := room.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := s.historyRepository.QueryRecent(r.Context(), room, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"room": room,
		"history": lo.Map(entries, func(e domain.HistoryEntry, _ int) historyRow {
			return historyRow{SenderUserID: e.SenderUserID, Message: e.Text, SortKey: e.SortKey, At: e.At}
		}),
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
