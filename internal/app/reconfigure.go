package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
	"github.com/eduardocaminha/reporter-sub000/internal/config"
)

// reloadTimeout bounds the template reload triggered by a config change.
const reloadTimeout = 30 * time.Second

// Reconfigure applies the hot-reloadable differences between old and new. It
// is meant as the [config.Watcher] callback. Sections that need a restart are
// only logged.
func (a *App) Reconfigure(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.TemplatesChanged && old.Templates.Dir != new.Templates.Dir {
		cache := catalog.NewDirCache(new.Templates.Dir)
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		cat, err := cache.Get(ctx)
		cancel()
		if err != nil {
			slog.Error("templates from new dir not loaded, keeping the old ones", "dir", new.Templates.Dir, "err", err)
			return
		}
		a.templates.Store(cache)
		slog.Info("templates dir changed", "dir", new.Templates.Dir, "masks", len(cat.Masks), "findings", len(cat.Findings))
	}

	if d.TemplatesChanged || d.PricingChanged {
		gen, err := a.buildGenerator(new)
		if err != nil {
			slog.Error("config change not applied", "err", err)
			return
		}
		a.generator.Store(gen)
		slog.Info("generator reconfigured",
			"optimize", new.Templates.OptimizeEnabled(),
			"pricing_changed", d.PricingChanged,
		)
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config section changed, restart to apply", "section", section)
	}
}

// SlogLevel maps a config log level onto slog.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
