package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/apexlog/trackmap-service-go/log"
	"github.com/apexlog/trackmap-service-go/pkg/feed"
	"github.com/apexlog/trackmap-service-go/pkg/model"
	"github.com/apexlog/trackmap-service-go/pkg/utils"
	"github.com/apexlog/trackmap-service-go/version"
)

// maxFrameSize caps the ingest request body.
const maxFrameSize = 4 * 1024 * 1024

type createSessionRequest struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	TrackName string `json:"trackName"`
}

type ingestResponse struct {
	Updates int `json:"updates"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn("could not write response", log.ErrorField(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireToken rejects requests without a valid api-token header. With no
// token configured the guard is disabled.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next(w, r)
			return
		}
		got := r.Header.Get("api-token")
		if !utils.TokenMatches(got, s.token) {
			s.l.Warn("rejected request with invalid token",
				log.String("path", r.URL.Path),
				log.String("token", utils.TokenFingerprint(got)))
			s.writeError(w, http.StatusUnauthorized, "invalid api token")
			return
		}
		next(w, r)
	}
}

// resolveSession writes a 404 and returns nil when the key is unknown.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *utils.SessionProcessingData {
	key := mux.Vars(r)["key"]
	spd, err := s.lookup.GetSession(key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", key))
		return nil
	}
	return spd
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lookup.Sessions())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Key == "" {
		req.Key = uuid.New().String()
	}
	info := model.SessionInfo{
		Key:       req.Key,
		Name:      req.Name,
		TrackName: req.TrackName,
		CreatedAt: time.Now(),
	}
	if _, err := s.lookup.AddSession(info); err != nil {
		if errors.Is(err, utils.ErrDuplicateSession) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("session '%s' already registered", info.Key))
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if err := s.relay.PublishSessionRegistered(info); err != nil {
		s.l.Warn("could not publish session registration", log.ErrorField(err))
	}
	s.l.Info("session registered",
		log.String("key", info.Key),
		log.String("track", info.TrackName))
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	info, err := s.infoCache.Get(r.Context(), key)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", key))
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := s.lookup.RemoveSession(key); err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown session '%s'", key))
		return
	}
	s.infoCache.Invalidate(r.Context(), key)
	if err := s.relay.PublishSessionUnregistered(key); err != nil {
		s.l.Warn("could not publish session removal", log.ErrorField(err))
	}
	s.l.Info("session removed", log.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackMap(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	trackMap := spd.Processor.GenerateTrackMap(r.URL.Query().Get("name"))
	if trackMap == nil {
		s.writeError(w, http.StatusNotFound, "track map not ready")
		return
	}
	writeJSON(w, http.StatusOK, trackMap)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	writeJSON(w, http.StatusOK, spd.Processor.CurrentDriverPositions())
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	writeJSON(w, http.StatusOK, spd.Processor.Bounds())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	writeJSON(w, http.StatusOK, spd.Processor.Stats())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	writeJSON(w, http.StatusOK, spd.Processor.ExportTrackMap())
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	spd.Processor.Clear()
	s.l.Info("session cleared", log.String("key", mux.Vars(r)["key"]))
	w.WriteHeader(http.StatusNoContent)
}

// handleIngest accepts one frame envelope per request. The frame payload
// is handed to the session's engine, malformed payload content is the
// engine's business and never fails the request.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	spd := s.resolveSession(w, r)
	if spd == nil {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("could not read request: %v", err))
		return
	}
	env, err := feed.DecodeEnvelope(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload, err := feed.DecodePayload(env.Data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	traceCtx, mainSpan := s.tracer.Start(r.Context(), "handle frame")
	mainSpan.SetAttributes(
		attribute.String("session", spd.Info.Key),
		attribute.String("type", string(env.Type)))
	defer mainSpan.End()
	updates := 0
	_, processSpan := s.tracer.Start(traceCtx, "process frame payload")
	defer processSpan.End()
	switch env.Type {
	case model.FrameTypePosition:
		updates = len(spd.Processor.ProcessPositionData(payload))
	case model.FrameTypeTiming:
		spd.Processor.ProcessTimingData(payload)
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown frame type '%s'", env.Type))
		return
	}
	s.lookup.MarkActivity(spd.Info.Key)
	if s.ingestCounter != nil {
		s.ingestCounter.Add(r.Context(), 1,
			metric.WithAttributes(
				attribute.String("session", spd.Info.Key),
				attribute.String("type", string(env.Type))))
	}
	writeJSON(w, http.StatusOK, ingestResponse{Updates: updates})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":   version.Version,
		"commit":    version.Commit,
		"buildDate": version.BuildDate,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": s.lookup.Len(),
	})
}
