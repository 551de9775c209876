package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/smartcrop/sensor-node/db"
	"github.com/smartcrop/sensor-node/internal/clock"
	"github.com/smartcrop/sensor-node/internal/gpio"
	"github.com/smartcrop/sensor-node/internal/model"
	"github.com/smartcrop/sensor-node/internal/scheduler"
	"github.com/smartcrop/sensor-node/internal/snapshot"
)

const maxHistory = 500

type Server struct {
	db       *sql.DB
	cell     *snapshot.Cell
	clock    clock.Clock
	stagger  time.Duration
	gatherer prometheus.Gatherer
}

type SnapshotResponse struct {
	Node      int                       `json:"node"`
	Timestamp time.Time                 `json:"timestamp"`
	Data      map[string]map[string]any `json:"data"`
}

type ReadingResponse struct {
	Sensor    string         `json:"sensor"`
	Node      int            `json:"node"`
	Timestamp time.Time      `json:"timestamp"`
	Values    map[string]any `json:"values"`
}

type ScheduleResponse struct {
	StaggerSeconds int       `json:"stagger_seconds"`
	NextCycle      time.Time `json:"next_cycle"`
	SecondsUntil   int       `json:"seconds_until"`
}

type NodeResponse struct {
	NodeID    int      `json:"node_id"`
	Sensors   []string `json:"sensors"`
	Snapshots int      `json:"snapshots"`
	SafeMode  bool     `json:"safe_mode"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the status API. database may be nil when history storage is off.
func NewServer(database *sql.DB, cell *snapshot.Cell, clk clock.Clock, stagger time.Duration, gatherer prometheus.Gatherer) *Server {
	return &Server{
		db:       database,
		cell:     cell,
		clock:    clk,
		stagger:  stagger,
		gatherer: gatherer,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(cors)

	r.HandleFunc("/api/snapshot", s.getSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot/{sensor}", s.getReading).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshots", s.getSnapshots).Methods(http.MethodGet)
	r.HandleFunc("/api/schedule", s.getSchedule).Methods(http.MethodGet)
	r.HandleFunc("/api/node", s.getNode).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func toResponse(snap *model.Snapshot) SnapshotResponse {
	return SnapshotResponse{Node: snap.Node, Timestamp: snap.Timestamp, Data: snap.Data()}
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.cell.Latest()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "No snapshot published yet")
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(snap))
}

func (s *Server) getReading(w http.ResponseWriter, r *http.Request) {
	kind := model.Kind(mux.Vars(r)["sensor"])
	if !kind.Valid() {
		s.writeError(w, http.StatusBadRequest, "Unknown sensor kind")
		return
	}
	snap := s.cell.Latest()
	if snap == nil {
		s.writeError(w, http.StatusNotFound, "No snapshot published yet")
		return
	}
	reading, ok := snap.Readings[kind]
	if !ok {
		s.writeError(w, http.StatusNotFound, "Sensor has no reading in the latest snapshot")
		return
	}
	values := make(map[string]any, len(reading.Values))
	for k, v := range reading.Values {
		values[k] = v
	}
	s.writeJSON(w, http.StatusOK, ReadingResponse{
		Sensor:    string(kind),
		Node:      reading.Node,
		Timestamp: snap.Timestamp,
		Values:    values,
	})
}

func (s *Server) getSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History storage is disabled")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}

	snaps, err := db.GetRecentSnapshots(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get snapshot history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response := make([]SnapshotResponse, 0, len(snaps))
	for _, snap := range snaps {
		response = append(response, toResponse(snap))
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	next := scheduler.NextBoundary(now, s.stagger)
	s.writeJSON(w, http.StatusOK, ScheduleResponse{
		StaggerSeconds: int(s.stagger.Seconds()),
		NextCycle:      next,
		SecondsUntil:   int(next.Sub(now).Seconds()),
	})
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History storage is disabled")
		return
	}
	id, err := db.GetNodeID(s.db)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get node id")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	kinds, err := db.GetConfiguredSensors(s.db)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	count, err := db.GetSnapshotCount(s.db)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sensors := make([]string, 0, len(kinds))
	for _, k := range kinds {
		sensors = append(sensors, string(k))
	}
	s.writeJSON(w, http.StatusOK, NodeResponse{
		NodeID:    id,
		Sensors:   sensors,
		Snapshots: count,
		SafeMode:  gpio.SafeMode(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
