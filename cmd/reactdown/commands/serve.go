package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/reactdown/internal/server"
)

// ServeCommand implements the serve command.
// Usage: reactdown serve [directory] [--watch] [--port N] [--host H] [--config path] [--debug]
func ServeCommand(args []string, out io.Writer) error {
	fs, err := parseFlags(args,
		map[string]bool{"port": true, "host": true, "config": true},
		map[string]string{"w": "watch", "p": "port", "c": "config"})
	if err != nil {
		return err
	}

	dir := "."
	if len(fs.positional) > 0 {
		dir = fs.positional[0]
	}
	if err := dirExists(dir); err != nil {
		return err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	cfg, err := loadConfig(fs.values["config"], absDir)
	if err != nil {
		return err
	}

	// CLI flags override config
	if port, ok, err := fs.port(); err != nil {
		return err
	} else if ok {
		cfg.Server.Port = port
	}
	if host, ok := fs.values["host"]; ok {
		cfg.Server.Host = host
	}
	if fs.bools["watch"] {
		cfg.Watch = true
	}
	if fs.bools["no-watch"] {
		cfg.Watch = false
	}
	if fs.bools["debug"] {
		cfg.Server.Debug = true
	}

	logger, err := newLogger(cfg.Server.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newBlockRuntime(ctx, cfg, absDir, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := server.New(absDir, cfg, rt.engine, server.WithLogger(logger))
	defer srv.Close()

	if err := srv.Discover(); err != nil {
		return fmt.Errorf("failed to discover pages: %w", err)
	}

	fmt.Fprintf(out, "📚 Reactdown Development Server\n\n")
	fmt.Fprintf(out, "Serving: %s\n", absDir)
	if rt.modules != nil {
		fmt.Fprintf(out, "Modules: %d WASM module(s) from %s\n", len(rt.modules.Modules()), cfg.ResolveModulePath(absDir))
	}

	fmt.Fprintf(out, "\nPages discovered:\n")
	for _, route := range srv.Routes() {
		failed := ""
		if n := len(route.Doc.Errors()); n > 0 {
			failed = fmt.Sprintf("  (%d failing block(s))", n)
		}
		fmt.Fprintf(out, "  %-30s %s%s\n", route.Pattern, route.FilePath, failed)
	}

	if cfg.Watch {
		if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
		fmt.Fprintf(out, "\n👀 Watch mode enabled - pages reload when documents change\n")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(out, "\n🌐 Server running at http://%s\n", addr)
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[Server] Shutdown failed", zap.Error(err))
	}
	return nil
}
