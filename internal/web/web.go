package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskcal/internal/calendar"
	"deskcal/internal/config"
	"deskcal/internal/controller"
	"deskcal/internal/ics"
	appLog "deskcal/internal/log"
	"deskcal/internal/metrics"
	"deskcal/internal/model"
	"deskcal/internal/status"
	"deskcal/internal/store"
	"deskcal/internal/theme"
	"deskcal/internal/weather"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 64 << 10
)

// Server exposes the calendar controller as a JSON API.
type Server struct {
	cfg  *config.Config
	ctrl *controller.Controller
	line *status.Line
	loc  *time.Location
	mux  *http.ServeMux

	themeMu sync.RWMutex
	theme   theme.Theme
}

// NewServer constructs a new Server. line may be nil.
func NewServer(cfg *config.Config, ctrl *controller.Controller, line *status.Line) *Server {
	s := &Server{
		cfg:   cfg,
		ctrl:  ctrl,
		line:  line,
		loc:   cfg.Location(),
		mux:   http.NewServeMux(),
		theme: theme.ByName(cfg.Theme),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed handler with request IDs, access logging,
// metrics and, when configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestMiddleware(h)
}

// Theme returns the palette currently served to clients.
func (s *Server) Theme() theme.Theme {
	s.themeMu.RLock()
	defer s.themeMu.RUnlock()
	return s.theme
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/month", s.handleMonth)
	s.mux.HandleFunc("POST /api/month/next", s.handleNavigate(s.ctrl.Advance))
	s.mux.HandleFunc("POST /api/month/prev", s.handleNavigate(s.ctrl.Retreat))
	s.mux.HandleFunc("POST /api/month/today", s.handleNavigate(s.ctrl.ResetToToday))

	s.mux.HandleFunc("GET /api/events", s.handleEventsForDate)
	s.mux.HandleFunc("POST /api/events", s.handleAddEvent)
	s.mux.HandleFunc("PUT /api/events/{date}/{index}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{date}/{index}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /api/events.ics", s.handleExport)

	s.mux.HandleFunc("GET /api/holidays", s.handleHolidays)
	s.mux.HandleFunc("GET /api/weather", s.handleWeather)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/theme", s.handleTheme)
	s.mux.HandleFunc("POST /api/theme", s.handleToggleTheme)
	s.mux.HandleFunc("GET /api/choices", s.handleChoices)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type monthResponse struct {
	controller.View
	Theme string `json:"theme"`
}

func (s *Server) monthResponse() monthResponse {
	return monthResponse{View: s.ctrl.View(), Theme: s.Theme().Name}
}

func (s *Server) handleMonth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monthResponse())
}

func (s *Server) handleNavigate(step func(context.Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		step(r.Context())
		s.syncWeather()
		writeJSON(w, http.StatusOK, s.monthResponse())
	}
}

// syncWeather copies the controller's latest snapshot to the status line.
func (s *Server) syncWeather() {
	if s.line == nil {
		return
	}
	snap, _ := s.ctrl.Weather()
	s.line.SetWeather(snap)
}

func (s *Server) flash(msg string) {
	if s.line != nil {
		s.line.Flash(msg, status.DefaultFlash)
	}
}

type dayResponse struct {
	Date    string        `json:"date"`
	Holiday string        `json:"holiday,omitempty"`
	Events  []model.Event `json:"events"`
}

func (s *Server) dayResponse(date string) dayResponse {
	name, _ := s.ctrl.HolidayName(date)
	return dayResponse{Date: date, Holiday: name, Events: s.ctrl.EventsForDate(date)}
}

// handleEventsForDate returns one day's events.
//
// GET /api/events?date=YYYY-MM-DD (default: today)
func (s *Server) handleEventsForDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.ctrl.Today()
	}
	if _, err := calendar.ParseDateKey(date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	writeJSON(w, http.StatusOK, s.dayResponse(date))
}

type eventRequest struct {
	Date      string `json:"date"`
	Title     string `json:"title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Memo      string `json:"memo"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.ctrl.AddEvent(r.Context(), req.Date, req.Title, req.StartTime, req.EndTime, req.Memo)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	s.flash("予定を追加しました")
	writeJSON(w, http.StatusCreated, s.dayResponse(req.Date))
}

// eventAddress reads {date}/{index} from the path.
func eventAddress(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	date := r.PathValue("date")
	if _, err := calendar.ParseDateKey(date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return "", 0, false
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return "", 0, false
	}
	return date, index, true
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	date, index, ok := eventAddress(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	found, err := s.ctrl.UpdateEvent(r.Context(), date, index, req.Title, req.StartTime, req.EndTime, req.Memo)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	s.flash("予定を更新しました")
	writeJSON(w, http.StatusOK, s.dayResponse(date))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	date, index, ok := eventAddress(w, r)
	if !ok {
		return
	}
	found, err := s.ctrl.DeleteEvent(r.Context(), date, index)
	if err != nil {
		writeMutationError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	s.flash("予定を削除しました")
	writeJSON(w, http.StatusOK, s.dayResponse(date))
}

func writeMutationError(w http.ResponseWriter, err error) {
	if errors.Is(err, controller.ErrInvalidEvent) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Error("event mutation failed", err)
	writeError(w, http.StatusInternalServerError, "failed to save events")
}

// handleExport serves every event plus the loaded year's holidays as
// iCalendar.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	v := s.ctrl.View()
	body := ics.Export(v.Events, v.Holidays, s.loc, time.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="deskcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type holidaysResponse struct {
	Year     int            `json:"year"`
	Holidays model.Holidays `json:"holidays"`
	Status   model.Status   `json:"status"`
}

func (s *Server) handleHolidays(w http.ResponseWriter, _ *http.Request) {
	v := s.ctrl.View()
	writeJSON(w, http.StatusOK, holidaysResponse{Year: v.Year, Holidays: v.Holidays, Status: v.HolidayStatus})
}

type weatherResponse struct {
	Weather *weather.Snapshot `json:"weather"`
	Glyphs  string            `json:"glyphs,omitempty"`
	Status  model.Status      `json:"status"`
}

func (s *Server) handleWeather(w http.ResponseWriter, _ *http.Request) {
	snap, st := s.ctrl.Weather()
	resp := weatherResponse{Weather: snap, Status: st}
	if snap != nil {
		resp.Glyphs = status.Glyphs(snap.Icons)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.line == nil {
		writeError(w, http.StatusServiceUnavailable, "status line not running")
		return
	}
	writeJSON(w, http.StatusOK, s.line.Snapshot())
}

func (s *Server) handleTheme(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Theme())
}

// handleToggleTheme switches between the light and dark palettes.
func (s *Server) handleToggleTheme(w http.ResponseWriter, _ *http.Request) {
	s.themeMu.Lock()
	s.theme = s.theme.Toggle()
	th := s.theme
	s.themeMu.Unlock()
	appLog.Info("theme toggled", "theme", th.Name)
	writeJSON(w, http.StatusOK, th)
}

type choicesResponse struct {
	Titles []string `json:"titles"`
	Times  []string `json:"times"`
}

func (s *Server) handleChoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, choicesResponse{Titles: controller.TitleChoices, Times: controller.TimeChoices()})
}

// statusRecorder captures the response code for logs and metrics.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware tags every request with an X-Request-ID (kept when the
// client sends one), writes an access log line and counts the request.
func requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		// ServeMux records the matched pattern on the request.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		appLog.Info("http request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.code,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, code, errResp{Error: msg})
}
