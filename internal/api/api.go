// Package api serves the status and temperature pages, the logging and
// shutdown commands, and a small JSON API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/propagator/internal/config"
	"github.com/thatsimonsguy/propagator/internal/model"
	"github.com/thatsimonsguy/propagator/internal/state"
)

const pageTimeFormat = "15:04 on 02-01-2006"

type Logging interface {
	Start() bool
	Stop() bool
	Status() model.LogStatus
	CurrentFile() string
	LastError() error
}

type StateReader interface {
	Snapshot() state.Snapshot
}

type Shutdowner interface {
	Schedule() error
	Cancel() error
}

type SessionLister interface {
	ListSessions() ([]model.Session, error)
}

type Server struct {
	title    string
	units    model.Units
	state    StateReader
	logger   Logging
	shutdown Shutdowner
	sessions SessionLister
	now      func() time.Time
	router   *httprouter.Router
}

type ChannelResponse struct {
	Name        string   `json:"name"`
	Value       string   `json:"value"`
	Temperature *float64 `json:"temperature,omitempty"`
	Fault       string   `json:"fault,omitempty"`
	Heater      string   `json:"heater"`
}

type StatusResponse struct {
	Title     string            `json:"title"`
	Units     string            `json:"units"`
	Setpoint  float64           `json:"setpoint"`
	Air       *float64          `json:"air"`
	Heater    string            `json:"heater"`
	Channels  []ChannelResponse `json:"channels"`
	Logging   string            `json:"logging"`
	LogFile   string            `json:"log_file,omitempty"`
	LogError  string            `json:"log_error,omitempty"`
	OnTicks   int               `json:"on_ticks"`
	OffTicks  int               `json:"off_ticks"`
	Min       *float64          `json:"min"`
	Max       *float64          `json:"max"`
	UpdatedAt *time.Time        `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the routes. sessions may be nil when no index is kept.
func NewServer(cfg *config.Config, st StateReader, logger Logging, shutdown Shutdowner, sessions SessionLister) *Server {
	s := &Server{
		title:    cfg.Title,
		units:    cfg.Units,
		state:    st,
		logger:   logger,
		shutdown: shutdown,
		sessions: sessions,
		now:      time.Now,
		router:   httprouter.New(),
	}

	s.router.GET("/", s.handleIndex)
	s.router.POST("/", s.handleLogButton)
	s.router.GET("/temp", s.handleTemperature)
	s.router.GET("/confirm", s.handleConfirm)
	s.router.GET("/shutdown", s.handleShutdown)
	s.router.GET("/cancel", s.handleCancel)
	s.router.GET("/api/status", s.handleStatus)
	s.router.GET("/api/sessions", s.handleSessions)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns a server for addr; the caller owns its lifecycle.
func (s *Server) HTTPServer(addr string) *http.Server {
	log.Info().Str("address", addr).Msg("Starting web server")
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type pageData struct {
	Title    string
	Time     string
	Logging  string
	LogFile  string
	LogError string
	Message  string
	Units    string
	Setpoint string
	Air      string
	Heater   string
	Channels []ChannelResponse
}

func (s *Server) basePage() pageData {
	return pageData{Title: s.title, Time: s.now().Format(pageTimeFormat)}
}

func (s *Server) indexPage(message string) pageData {
	p := s.basePage()
	p.Logging = "Inactive"
	if s.logger.Status() == model.LogOn {
		p.Logging = "Active"
	}
	p.LogFile = s.logger.CurrentFile()
	if err := s.logger.LastError(); err != nil {
		p.LogError = err.Error()
	}
	p.Message = message
	return p
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.render(w, http.StatusOK, "index", s.indexPage(""))
}

func (s *Server) handleLogButton(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}
	if _, ok := r.PostForm["logging"]; !ok {
		http.Error(w, "missing logging field", http.StatusBadRequest)
		return
	}

	switch value := r.PostForm.Get("logging"); value {
	case "Log_Start":
		if s.logger.Start() {
			log.Info().Msg("Logging started via web")
		}
	case "Log_Stop":
		if s.logger.Stop() {
			log.Info().Msg("Logging stop requested via web")
		}
	default:
		log.Warn().Str("value", value).Msg("Unknown logging command")
	}

	s.render(w, http.StatusOK, "index", s.indexPage(""))
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.state.Snapshot()
	p := s.basePage()
	p.Units = strings.ToUpper(string(s.units))
	p.Setpoint = model.FormatTemperature(snap.Setpoint)
	p.Air = snap.Air.String()
	p.Heater = string(snap.Heater)
	p.Channels = channelResponses(snap)
	s.render(w, http.StatusOK, "temperature", p)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.render(w, http.StatusOK, "confirm", s.basePage())
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p := s.basePage()
	status := http.StatusOK
	if err := s.shutdown.Schedule(); err != nil {
		p.Message = "Shutdown failed: " + err.Error()
		status = http.StatusInternalServerError
	} else {
		log.Warn().Msg("System shutdown scheduled via web")
	}
	s.render(w, status, "shutdown", p)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	message := ""
	status := http.StatusOK
	if err := s.shutdown.Cancel(); err != nil {
		message = "Cancel failed: " + err.Error()
		status = http.StatusInternalServerError
	} else {
		log.Info().Msg("System shutdown cancelled via web")
	}
	s.render(w, status, "index", s.indexPage(message))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.state.Snapshot()
	resp := StatusResponse{
		Title:    s.title,
		Units:    strings.ToUpper(string(s.units)),
		Setpoint: snap.Setpoint,
		Heater:   string(snap.Heater),
		Channels: channelResponses(snap),
		Logging:  string(s.logger.Status()),
		LogFile:  s.logger.CurrentFile(),
		OnTicks:  snap.OnTicks,
		OffTicks: snap.OffTicks,
	}
	if snap.Air.OK() {
		air := snap.Air.Temperature
		resp.Air = &air
	}
	if snap.BoundsSeeded {
		lo, hi := snap.Min, snap.Max
		resp.Min, resp.Max = &lo, &hi
	}
	if !snap.UpdatedAt.IsZero() {
		updated := snap.UpdatedAt
		resp.UpdatedAt = &updated
	}
	if err := s.logger.LastError(); err != nil {
		resp.LogError = err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusOK, []model.Session{})
		return
	}
	sessions, err := s.sessions.ListSessions()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		s.writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func channelResponses(snap state.Snapshot) []ChannelResponse {
	out := make([]ChannelResponse, len(snap.Channels))
	for i, ch := range snap.Channels {
		out[i] = ChannelResponse{
			Name:   ch.Name,
			Value:  ch.Reading.String(),
			Fault:  ch.Reading.Fault,
			Heater: string(ch.Heater),
		}
		if ch.Reading.OK() {
			v := ch.Reading.Temperature
			out[i].Temperature = &v
		}
	}
	return out
}

func (s *Server) render(w http.ResponseWriter, statusCode int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := pages[name].Execute(w, data); err != nil {
		log.Error().Err(err).Str("page", name).Msg("Failed to render page")
	}
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
