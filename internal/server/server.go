// Package server serves a folder of reactdown documents over HTTP and pushes
// reloads to open pages when a document changes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/livetemplate/reactdown"
	"github.com/livetemplate/reactdown/internal/assets"
	"github.com/livetemplate/reactdown/internal/config"
)

// Route represents a discovered page route.
type Route struct {
	Pattern  string              // URL pattern (e.g., "/counter")
	FilePath string              // Relative file path (e.g., "counter.md")
	Doc      *reactdown.Document // Attached document
}

// Server is the reactdown development server.
type Server struct {
	rootDir string
	config  *config.Config
	runner  reactdown.Runner
	logger  *zap.Logger

	mu     sync.RWMutex
	routes []*Route

	connections map[*websocket.Conn]bool // Track connected WebSocket clients
	connMu      sync.Mutex               // Separate mutex for connections, held while writing

	watcher *Watcher // File watcher for live reload
	closed  bool

	handlerOnce sync.Once
	handler     http.Handler
	stopLimiter context.CancelFunc
	limiterDone <-chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for rootDir that runs blocks with runner.
func New(rootDir string, cfg *config.Config, runner reactdown.Runner, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		rootDir:     rootDir,
		config:      cfg,
		runner:      runner,
		logger:      zap.NewNop(),
		connections: make(map[*websocket.Conn]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover scans the directory for .md files and renders one document per
// file. Previously rendered documents are closed first.
func (s *Server) Discover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.routes {
		r.Doc.Close()
	}
	s.routes = nil

	err := filepath.WalkDir(s.rootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			// Skip directories starting with _ or .
			name := d.Name()
			if p != s.rootDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if filepath.Ext(p) != ".md" {
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, p)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if s.ignored(relPath) {
			return nil
		}

		route, err := s.render(relPath)
		if err != nil {
			s.logger.Warn("[Server] Failed to render page", zap.String("file", relPath), zap.Error(err))
			return nil // Continue with other files
		}
		s.routes = append(s.routes, route)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	sortRoutes(s.routes)
	return nil
}

// Reload re-renders one file. The old document is closed before the new one
// attaches; a file that no longer exists loses its route.
func (s *Server) Reload(relPath string) error {
	relPath = filepath.ToSlash(relPath)

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.routes {
		if r.FilePath == relPath {
			idx = i
			break
		}
	}
	if idx >= 0 {
		s.routes[idx].Doc.Close()
	}

	if _, err := os.Stat(filepath.Join(s.rootDir, filepath.FromSlash(relPath))); os.IsNotExist(err) || s.ignored(relPath) {
		if idx >= 0 {
			s.routes = append(s.routes[:idx], s.routes[idx+1:]...)
		}
		return nil
	}

	route, err := s.render(relPath)
	if err != nil {
		if idx >= 0 {
			s.routes = append(s.routes[:idx], s.routes[idx+1:]...)
		}
		return err
	}
	if idx >= 0 {
		s.routes[idx] = route
	} else {
		s.routes = append(s.routes, route)
		sortRoutes(s.routes)
	}
	return nil
}

// render parses and attaches relPath. Block failures are rendered inline and
// only logged here.
func (s *Server) render(relPath string) (*Route, error) {
	content, err := os.ReadFile(filepath.Join(s.rootDir, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	doc, err := reactdown.Parse(relPath, content, s.runner)
	if err != nil {
		return nil, err
	}
	if err := doc.Attach(); err != nil {
		s.logger.Debug("[Server] Page has failing blocks",
			zap.String("file", relPath),
			zap.Int("failed", len(doc.Errors())))
	}
	return &Route{Pattern: mdToPattern(relPath), FilePath: relPath, Doc: doc}, nil
}

func (s *Server) ignored(relPath string) bool {
	if strings.Contains(relPath, "/_") || strings.HasPrefix(relPath, "_") {
		return true
	}
	for _, pattern := range s.config.Ignore {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if strings.HasPrefix(relPath, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, relPath); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(relPath)); ok {
			return true
		}
	}
	return false
}

// Routes returns the discovered routes.
func (s *Server) Routes() []*Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Route, len(s.routes))
	copy(out, s.routes)
	return out
}

// Handler returns the server wrapped in its middleware chain. The chain is
// built on the first call; later calls return the same handler.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		var h http.Handler = s
		if s.config.RateLimit != nil {
			ctx, cancel := context.WithCancel(context.Background())
			mw, done := RateLimitMiddleware(ctx, s.config.RateLimit.GetRPS(), s.config.RateLimit.GetBurst(), 0, s.logger)
			s.mu.Lock()
			s.stopLimiter, s.limiterDone = cancel, done
			s.mu.Unlock()
			h = mw(h)
		}
		s.handler = SecurityHeadersMiddleware()(WithCompression(h))
	})
	return s.handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ws" {
		s.serveWebSocket(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/assets/") {
		s.serveAsset(w, r)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, route := range s.routes {
		if route.Pattern == r.URL.Path {
			s.servePage(w, route)
			return
		}
	}

	// Unknown paths go to the home page when there is one
	if r.URL.Path != "/" && s.hasRoot() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) hasRoot() bool {
	for _, route := range s.routes {
		if route.Pattern == "/" {
			return true
		}
	}
	return false
}

// serveAsset serves embedded client assets.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/assets/") {
	case "reactdown.css":
		css, err := assets.GetCSS()
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write(css)
	case "reload.js":
		js, err := assets.GetReloadJS()
		if err != nil {
			http.Error(w, "Asset not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write(js)
	default:
		http.NotFound(w, r)
	}
}

type navLink struct {
	Href   string
	Label  string
	Active bool
}

type pageData struct {
	Title   string
	File    string
	Nav     []navLink
	Content template.HTML
	Reload  bool
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="/assets/reactdown.css">
</head>
<body data-file="{{.File}}">
<div class="rd-layout">
<nav class="rd-nav">
{{- range .Nav}}
<a href="{{.Href}}"{{if .Active}} class="active"{{end}}>{{.Label}}</a>
{{- end}}
</nav>
<article>
{{.Content}}
</article>
</div>
{{- if .Reload}}
<script src="/assets/reload.js"></script>
{{- end}}
</body>
</html>
`))

// servePage renders a route inside the page layout. Caller holds s.mu.
func (s *Server) servePage(w http.ResponseWriter, route *Route) {
	content, err := route.Doc.HTML()
	if err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	title := route.Doc.Title()
	if title == "" {
		title = s.config.Title
	}

	data := pageData{
		Title:   title,
		File:    route.FilePath,
		Content: template.HTML(content),
		Reload:  s.watcher != nil,
	}
	for _, r := range s.routes {
		label := r.Doc.Title()
		if label == "" {
			label = r.FilePath
		}
		data.Nav = append(data.Nav, navLink{Href: r.Pattern, Label: label, Active: r == route})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Warn("[Server] Failed to write page", zap.String("file", route.FilePath), zap.Error(err))
	}
}

// mdToPattern converts a markdown file path to a URL pattern.
// Examples:
//   - "index.md" → "/"
//   - "counter.md" → "/counter"
//   - "tutorials/index.md" → "/tutorials/"
func mdToPattern(relPath string) string {
	p := filepath.ToSlash(strings.TrimSuffix(relPath, ".md"))

	if p == "index" {
		return "/"
	}
	if strings.HasSuffix(p, "/index") {
		return "/" + strings.TrimSuffix(p, "index")
	}
	return "/" + p
}

// sortRoutes orders routes: / first, then directory indexes, then the rest,
// alphabetically within each group.
func sortRoutes(routes []*Route) {
	rank := func(r *Route) int {
		switch {
		case r.Pattern == "/":
			return 0
		case strings.HasSuffix(r.Pattern, "/"):
			return 1
		}
		return 2
	}
	sort.SliceStable(routes, func(i, j int) bool {
		ri, rj := rank(routes[i]), rank(routes[j])
		if ri != rj {
			return ri < rj
		}
		return routes[i].Pattern < routes[j].Pattern
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// serveWebSocket keeps a reload channel open until the client goes away.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("[Server] WebSocket upgrade failed", zap.Error(err))
		return
	}
	s.RegisterConnection(conn)
	defer func() {
		s.UnregisterConnection(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// RegisterConnection adds a WebSocket connection to the tracked connections.
func (s *Server) RegisterConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections[conn] = true
	s.logger.Debug("[Server] WebSocket connection registered", zap.Int("active", len(s.connections)))
}

// UnregisterConnection removes a WebSocket connection from tracked connections.
func (s *Server) UnregisterConnection(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	delete(s.connections, conn)
	s.logger.Debug("[Server] WebSocket connection unregistered", zap.Int("active", len(s.connections)))
}

// ConnectionCount returns the number of open reload connections.
func (s *Server) ConnectionCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.connections)
}

// BroadcastReload sends a reload message to all connected WebSocket clients.
func (s *Server) BroadcastReload(filePath string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if len(s.connections) == 0 {
		return
	}

	data, err := json.Marshal(map[string]string{
		"action":   "reload",
		"filePath": filepath.ToSlash(filePath),
	})
	if err != nil {
		s.logger.Error("[Server] Failed to marshal reload message", zap.Error(err))
		return
	}

	s.logger.Info("[Server] Broadcasting reload",
		zap.String("file", filePath),
		zap.Int("connections", len(s.connections)))

	for conn := range s.connections {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn("[Server] Failed to send reload to connection", zap.Error(err))
		}
	}
}

// EnableWatch re-renders changed documents and tells open pages to reload.
func (s *Server) EnableWatch() error {
	watcher, err := NewWatcher(s.rootDir, func(filePath string) error {
		if err := s.Reload(filePath); err != nil {
			return fmt.Errorf("failed to re-render %s: %w", filePath, err)
		}
		s.BroadcastReload(filePath)
		return nil
	}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()
	watcher.Start()

	s.logger.Info("[Watch] File watcher started", zap.String("dir", s.rootDir))
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.Stop()
	}
	return nil
}

// Close stops watching, drops every reload connection and detaches every
// document. It is safe to call more than once.
func (s *Server) Close() error {
	err := s.StopWatch()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connections = make(map[*websocket.Conn]bool)
	s.connMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLimiter != nil {
		s.stopLimiter()
		<-s.limiterDone
		s.stopLimiter = nil
	}
	if !s.closed {
		s.closed = true
		for _, r := range s.routes {
			r.Doc.Close()
		}
	}
	return err
}
