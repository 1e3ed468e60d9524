package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"photo-shrinker-go/internal/compressor"
	"photo-shrinker-go/internal/config"
	"photo-shrinker-go/internal/extractor"
	"photo-shrinker-go/internal/logger"
	"photo-shrinker-go/internal/organizer"
	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/statistics"
	"photo-shrinker-go/internal/strategy"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	engine     *compressor.Engine
	extractor  *extractor.EXIFExtractor
	results    *compressor.ResultLoop
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current batch run state
	operationMutex sync.RWMutex
	isRunning      bool
	cancelRun      context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

type RunRequest struct {
	SourceDirectory string `json:"source_directory"`
	TargetDirectory string `json:"target_directory,omitempty"`
	Gear            string `json:"gear,omitempty"`
	DryRun          bool   `json:"dry_run"`
}

type PlanResponse struct {
	MIME     string              `json:"mime"`
	Width    int                 `json:"width"`
	Height   int                 `json:"height"`
	Size     int64               `json:"size"`
	Angle    int                 `json:"angle"`
	Plan     strategy.Plan       `json:"plan"`
	Decision compressor.Decision `json:"decision"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, engine *compressor.Engine) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		engine:    engine,
		extractor: extractor.NewEXIFExtractor(log),
		results:   compressor.NewResultLoop(64),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/gears", s.handleGears).Methods("GET")
	api.HandleFunc("/plan", s.handlePlan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/run", s.handleRun).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.results.Close()
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"gear":       s.cfg.Compression.Gear,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleGears(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    config.GetAvailableGears(),
	})
}

// readUpload reads the "image" part and the optional "gear" field of a
// multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*source.BytesSource, strategy.Gear, bool) {
	limit := s.cfg.Web.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeError(w, fmt.Sprintf("Invalid upload: %v", err), http.StatusBadRequest)
		return nil, 0, false
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, "Image file is required", http.StatusBadRequest)
		return nil, 0, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read upload: %v", err), http.StatusBadRequest)
		return nil, 0, false
	}

	mode := r.FormValue("gear")
	if mode == "" {
		mode = s.cfg.Compression.Gear
	}
	gear, err := strategy.SelectGear(mode)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return nil, 0, false
	}

	src, err := source.NewBytesSource(data, s.extractor.AngleFromBytes(data))
	if err != nil {
		s.writeFailure(w, fmt.Errorf("%w: %w", compressor.ErrInvalidInput, err))
		return nil, 0, false
	}
	return src, gear, true
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	src, gear, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	plan, ok := s.engine.Plan(src, gear)
	if !ok || !plan.Valid() {
		s.writeFailure(w, fmt.Errorf("%w: no plan for %dx%d in %s gear",
			compressor.ErrInvalidInput, src.Width(), src.Height(), gear))
		return
	}
	decision, err := compressor.PlanDownsample(src.Width(), src.Height(), plan.Width, plan.Height)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: PlanResponse{
			MIME:     src.MIME(),
			Width:    src.Width(),
			Height:   src.Height(),
			Size:     src.Size(),
			Angle:    src.Angle(),
			Plan:     plan,
			Decision: decision,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	src, gear, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	req := compressor.NewRequest(src, gear, s.progressListener())
	log := logger.WithRequest(s.log, req.ID, "compress")
	log.WithField("gear", gear.String()).Debug("Compress request")

	outcome := <-s.engine.Launch(r.Context(), req, s.results)
	if outcome.Err != nil {
		log.Warnf("Compression failed: %v", outcome.Err)
		s.writeFailure(w, outcome.Err)
		return
	}

	res := outcome.Result
	if res.Empty() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if s.cfg.Processing.StrictBudget && !res.BudgetMet {
		s.writeFailure(w, fmt.Errorf("%w: %d KB over %d KB budget", res.Err(), res.SizeKB(), res.Plan.BudgetKB))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	h.Set("X-Request-ID", req.ID)
	h.Set("X-Quality", strconv.Itoa(res.Quality))
	h.Set("X-Attempts", strconv.Itoa(res.Attempts))
	h.Set("X-Budget-KB", strconv.FormatInt(res.Plan.BudgetKB, 10))
	h.Set("X-Budget-Met", strconv.FormatBool(res.BudgetMet))
	h.Set("X-Image-Size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	if _, err := w.Write(res.Data); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}

// progressListener broadcasts the lifecycle of single-image requests. It runs
// on the result loop, so WebSocket messages keep completion order.
func (s *Server) progressListener() compressor.Listener {
	return compressor.ListenerFuncs{
		Start: func(id string) {
			s.broadcastWSMessage("compress_started", map[string]interface{}{
				"request_id": id,
			})
		},
		Success: func(id string, res *compressor.Result) {
			s.broadcastWSMessage("compress_completed", map[string]interface{}{
				"request_id": id,
				"quality":    res.Quality,
				"size_kb":    res.SizeKB(),
				"budget_kb":  res.Plan.BudgetKB,
				"budget_met": res.BudgetMet,
			})
		},
		Error: func(id string, err error) {
			s.broadcastWSMessage("compress_failed", map[string]interface{}{
				"request_id": id,
				"kind":       compressor.Kind(err),
				"error":      err.Error(),
			})
		},
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SourceDirectory == "" {
		s.writeError(w, "Source directory is required", http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(req.SourceDirectory); err != nil || !info.IsDir() {
		s.writeError(w, "Source directory does not exist", http.StatusBadRequest)
		return
	}

	cfg := *s.cfg
	cfg.SourceDirectory = req.SourceDirectory
	if req.TargetDirectory != "" {
		target := req.TargetDirectory
		cfg.TargetDirectory = &target
	}
	if req.Gear != "" {
		cfg.Compression.Gear = req.Gear
	}
	cfg.Security.DryRun = req.DryRun
	if err := cfg.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	stats := statistics.NewStatistics()
	s.isRunning = true
	s.cancelRun = cancel
	s.currentStats = stats
	s.operationMutex.Unlock()

	go s.runCompressAsync(ctx, &cfg, stats)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	running := s.isRunning
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.operationMutex.Unlock()

	if running {
		s.broadcastWSMessage("operation_stopped", map[string]interface{}{
			"message": "Operation stopped by user",
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && !s.cfg.IsImageExtension(filepath.Ext(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	if stats == nil {
		s.writeJSON(w, APIResponse{
			Success: true,
			Data:    nil,
		})
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"summary":    stats.GetSummary(),
			"file_types": stats.GetFileTypeBreakdown(),
			"gears":      stats.GetGearBreakdown(),
			"report":     stats.Snapshot(),
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

func (s *Server) runCompressAsync(ctx context.Context, cfg *config.Config, stats *statistics.Statistics) {
	defer func() {
		s.operationMutex.Lock()
		s.isRunning = false
		s.cancelRun = nil
		s.operationMutex.Unlock()
	}()

	s.broadcastWSMessage("run_started", map[string]interface{}{
		"source_directory": cfg.SourceDirectory,
		"target_directory": cfg.GetTargetDirectory(),
		"gear":             cfg.Compression.Gear,
		"dry_run":          cfg.Security.DryRun,
	})

	logHook := func(level, message string) {
		s.broadcastWSMessage("log", map[string]interface{}{
			"level":   level,
			"message": message,
		})
	}

	org := organizer.NewOrganizerWithLogHook(cfg, s.log, stats, s.extractor, s.engine, logHook)
	org.SetResultHook(func(result organizer.CompressionResult) {
		s.broadcastWSMessage("file_processed", result)
	})

	if cfg.Processing.MarkOutput && !cfg.Security.DryRun {
		marker, err := extractor.NewMarker()
		if err != nil {
			s.log.Warnf("Output marking disabled: %v", err)
		} else {
			defer marker.Close()
			org.SetMarker(marker)
		}
	}

	err := org.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		s.broadcastWSMessage("run_cancelled", map[string]interface{}{
			"statistics": stats.Snapshot(),
		})
	case err != nil:
		s.broadcastWSMessage("run_error", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		s.broadcastWSMessage("run_completed", map[string]interface{}{
			"processed":   stats.GetTotalFilesProcessed(),
			"compressed":  stats.GetFilesCompressed(),
			"errors":      stats.GetFilesWithErrors(),
			"duration_ms": stats.GetDuration().Milliseconds(),
			"summary":     stats.GetSummary(),
			"statistics":  stats.Snapshot(),
		})
	}
}

// broadcastWSMessage sends a message to every connected client. Writes are
// serialised because a websocket.Conn supports one concurrent writer.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeFailure maps a compression error to a status code by its class.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	kind := compressor.Kind(err)

	status := http.StatusInternalServerError
	switch kind {
	case "invalid_input":
		status = http.StatusBadRequest
	case "codec_failure", "budget_unreachable":
		status = http.StatusUnprocessableEntity
	case "cancelled":
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   err.Error(),
		Kind:    kind,
	})
}
