// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sylog implements a basic leveled logger, in the format used by
// apptainer's own pkg/sylog, for accelhook's host/container log file.
package sylog

import (
	"fmt"
	"io"
	"os"
	"strings"
)

var messageColors = map[messageLevel]string{
	FatalLevel: "\x1b[31m",
	ErrorLevel: "\x1b[31m",
	WarnLevel:  "\x1b[33m",
	InfoLevel:  "\x1b[34m",
}

var (
	loggerLevel = InfoLevel
	color       = true
)

var logWriter = (io.Writer)(os.Stderr)

func levelPrefix(msgLevel messageLevel) string {
	tag := msgLevel.String() + ":"
	messageColor, ok := messageColors[msgLevel]
	if !ok || !color {
		return fmt.Sprintf("%-8s ", tag)
	}
	return fmt.Sprintf("%s%-8s\x1b[0m ", messageColor, tag)
}

func emit(msgLevel messageLevel, format string, a ...interface{}) {
	if loggerLevel < msgLevel {
		return
	}

	message := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(logWriter, "%s%s\n", levelPrefix(msgLevel), message)
}

// Fatalf writes a FATAL level message to the log and exits with code 255.
func Fatalf(format string, a ...interface{}) {
	emit(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf writes an ERROR level message to the log but does not exit.
func Errorf(format string, a ...interface{}) {
	emit(ErrorLevel, format, a...)
}

// Warningf writes a WARNING level message to the log.
func Warningf(format string, a ...interface{}) {
	emit(WarnLevel, format, a...)
}

// Infof writes an INFO level message to the log.
func Infof(format string, a ...interface{}) {
	emit(InfoLevel, format, a...)
}

// Verbosef writes a VERBOSE level message to the log.
func Verbosef(format string, a ...interface{}) {
	emit(VerboseLevel, format, a...)
}

// Debugf writes a DEBUG level message to the log.
func Debugf(format string, a ...interface{}) {
	emit(DebugLevel, format, a...)
}

// SetLevel explicitly sets the logger level.
func SetLevel(l int, useColor bool) {
	loggerLevel = messageLevel(l)
	color = useColor
}

// LevelFromName maps the config file's global.loglevel string
// ("error"|"info"|"debug") onto a messageLevel, the way the original
// logSetLevel(LOG_ERR|LOG_INFO|LOG_DEBUG) call did. Unknown names are
// warned about and left at the current level.
func LevelFromName(name string) (int, bool) {
	switch strings.ToLower(name) {
	case "error":
		return int(ErrorLevel), true
	case "info":
		return int(InfoLevel), true
	case "debug":
		return int(DebugLevel), true
	default:
		return 0, false
	}
}

// GetLevel returns the current log level as an integer.
func GetLevel() int {
	return int(loggerLevel)
}

// Writer returns an io.Writer suitable for passing to external packages'
// logging utilities.
func Writer() io.Writer {
	if loggerLevel <= LogLevel {
		return io.Discard
	}
	return logWriter
}

// SetWriter sets a new io.Writer for subsequent logging, returning the
// previous one so a caller (e.g. a test) can restore it.
func SetWriter(w io.Writer) io.Writer {
	old := logWriter
	if w != nil {
		logWriter = w
	}
	return old
}

// OpenLogFile redirects the logger's writer to the named file, opened for
// append, mirroring the original tool's logOpen(path, level).
func OpenLogFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logWriter = f
	color = false
	return nil
}
