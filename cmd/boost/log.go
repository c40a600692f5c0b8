package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

func initLogger(w io.Writer) error {
	var level slog.Level
	switch strings.ToUpper(FlagVerbose) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q", FlagVerbose)
	}
	setLogger(w, level)
	return nil
}

func setLogger(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
