// Package api serves the artifacts of a finished run over HTTP. It reads
// straight off the output directory so a run can be inspected without any
// database configured.
package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pseudobulk/internal"
)

// Server exposes run artifacts as JSON and raw downloads
type Server struct {
	router    *chi.Mux
	outputDir string
	logger    *internal.Logger
}

// NewServer creates a server rooted at an output directory
func NewServer(outputDir string, logger *internal.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		outputDir: outputDir,
		logger:    logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/summary", s.handleSummary)
	s.router.Get("/api/contrasts", s.handleContrastList)
	s.router.Get("/api/contrasts/{name}", s.handleContrast)
	s.router.Get("/api/overlap/{direction}", s.handleOverlap)
	s.router.Get("/api/pseudobulk", s.handlePseudobulk)
	s.router.Get("/report", s.handleReport)
	s.router.Get("/artifacts/{name}", s.handleArtifact)
}

// Handler returns the HTTP handler for mounting or serving
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving on the given port
func (s *Server) ListenAndServe(port string) error {
	s.logger.Info("serving run artifacts from %s on :%s", s.outputDir, port)
	return http.ListenAndServe(":"+port, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, "summary.tsv")
}

// handleContrastList lists the contrasts that have a DE table on disk
func (s *Server) handleContrastList(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read output directory")
		return
	}
	var contrasts []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "de_") && strings.HasSuffix(name, ".tsv") {
			contrasts = append(contrasts, strings.TrimSuffix(strings.TrimPrefix(name, "de_"), ".tsv"))
		}
	}
	sort.Strings(contrasts)
	respondJSON(w, http.StatusOK, map[string]interface{}{"contrasts": contrasts})
}

func (s *Server) handleContrast(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.serveTable(w, fmt.Sprintf("de_%s.tsv", name))
}

func (s *Server) handleOverlap(w http.ResponseWriter, r *http.Request) {
	direction := chi.URLParam(r, "direction")
	s.serveTable(w, fmt.Sprintf("overlap_%s.tsv", direction))
}

func (s *Server) handlePseudobulk(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, "pseudobulk_counts.tsv")
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path, ok := s.artifactPath("report.html")
	if !ok {
		respondError(w, http.StatusNotFound, "report.html not found")
		return
	}
	http.ServeFile(w, r, path)
}

// handleArtifact serves a raw artifact file, e.g. results.xlsx
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, ok := s.artifactPath(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("artifact %s not found", name))
		return
	}
	http.ServeFile(w, r, path)
}

// serveTable renders a TSV artifact as a JSON array of string maps. Numeric
// parsing is left to the client; NA stays NA.
func (s *Server) serveTable(w http.ResponseWriter, filename string) {
	path, ok := s.artifactPath(filename)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("%s not found", filename))
		return
	}
	file, err := os.Open(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to open artifact")
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = '\t'
	records, err := reader.ReadAll()
	if err != nil || len(records) == 0 {
		respondError(w, http.StatusInternalServerError, "failed to parse artifact")
		return
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"columns": header, "rows": rows})
}

// artifactPath resolves a filename inside the output directory, rejecting
// path traversal.
func (s *Server) artifactPath(name string) (string, bool) {
	if name != filepath.Base(name) {
		return "", false
	}
	path := filepath.Join(s.outputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
