// Package commands implements the reactdown subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/livetemplate/reactdown"
	"github.com/livetemplate/reactdown/internal/cache"
	"github.com/livetemplate/reactdown/internal/config"
	"github.com/livetemplate/reactdown/internal/engine"
	"github.com/livetemplate/reactdown/internal/gateway"
	"github.com/livetemplate/reactdown/internal/wasm"
)

// blockRuntime is the engine built from a configuration, plus what it owns.
type blockRuntime struct {
	engine  *engine.Engine
	modules *wasm.Set
	cache   *cache.MemoryCache
}

// newBlockRuntime builds the whitelist (the default modules plus any WASM
// modules in the configured module folder) and an engine that uses it.
func newBlockRuntime(ctx context.Context, cfg *config.Config, dir string, logger *zap.Logger) (*blockRuntime, error) {
	rt := &blockRuntime{}

	var extra []gateway.Entry
	if modDir := cfg.ResolveModulePath(dir); modDir != "" {
		set, err := wasm.LoadDir(ctx, modDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load modules: %w", err)
		}
		rt.modules = set
		extra = set.Entries()
		for _, m := range set.Modules() {
			logger.Debug("[Engine] Loaded WASM module",
				zap.String("name", m.Name()),
				zap.Strings("exports", m.Exports()))
		}
	}

	gw, err := gateway.Default(extra...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build module whitelist: %w", err)
	}

	opts := []engine.Option{engine.WithLogger(logger)}
	if n := cfg.Cache.GetMaxEntries(); n > 0 {
		rt.cache = cache.NewMemoryCache(n)
		opts = append(opts, engine.WithCache(rt.cache, cfg.Cache.GetTTL()))
	}
	rt.engine = engine.New(gw, opts...)
	return rt, nil
}

func (rt *blockRuntime) Close() error {
	if rt.cache != nil {
		rt.cache.Stop()
	}
	if rt.modules != nil {
		return rt.modules.Close()
	}
	return nil
}

// newLogger returns a console logger; debug lowers the level to Debug.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.DisableCaller = true
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	reactdown.SetLogger(logger)
	return logger, nil
}

// flagSet holds parsed command-line flags.
type flagSet struct {
	values     map[string]string
	bools      map[string]bool
	positional []string
}

// parseFlags splits args into --name value / --name=value options, boolean
// switches and positional arguments. valued lists the flags that take a
// value; short aliases map to their long form.
func parseFlags(args []string, valued map[string]bool, aliases map[string]string) (*flagSet, error) {
	fs := &flagSet{values: map[string]string{}, bools: map[string]bool{}}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			fs.positional = append(fs.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if long, ok := aliases[name]; ok {
			name = long
		}
		if !valued[name] {
			fs.bools[name] = true
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			value = args[i]
		}
		fs.values[name] = value
	}
	return fs, nil
}

func (fs *flagSet) port() (int, bool, error) {
	v, ok := fs.values["port"]
	if !ok {
		return 0, false, nil
	}
	p, err := strconv.Atoi(v)
	if err != nil || p < 0 || p > 65535 {
		return 0, false, fmt.Errorf("invalid port: %s", v)
	}
	return p, true, nil
}

func dirExists(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("directory does not exist: %s", dir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	return nil
}
