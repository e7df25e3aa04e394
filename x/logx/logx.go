// Package logx builds the node's slog logger from a configured level name.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

var levelMap = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Level maps a level name to a slog.Level. An empty name means info.
func Level(name string) (slog.Level, error) {
	if name == "" {
		return slog.LevelInfo, nil
	}
	lvl, ok := levelMap[strings.ToLower(name)]
	if !ok {
		var valid []string
		for k := range levelMap {
			valid = append(valid, k)
		}
		sort.Strings(valid)
		return 0, fmt.Errorf("invalid log level: %s; supported: %s", name, strings.Join(valid, ", "))
	}
	return lvl, nil
}

// New returns a JSON logger writing to w and installs it as the slog default.
func New(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := Level(level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}
