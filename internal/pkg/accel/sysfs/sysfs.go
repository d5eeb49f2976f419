// Package sysfs provides the small set of sysfs whole-file read/write
// primitives accelhook's engine drivers and cgroup helpers build on. No
// example repo in the retrieval pack wraps sysfs access in a library, so
// this stays on the standard library, matching the original tool's
// direct fopen/fread/fputs use.
package sysfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ReadString reads path and returns its contents up to (not including)
// the first newline, mirroring sysfsReadString's strcspn(value, "\n")
// truncation.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	s := string(data)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s, nil
}

// WriteString overwrites path with value, with no trailing newline
// appended, mirroring sysfsWriteString's fputs.
func WriteString(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("%s: failed to write string: %w", path, err)
	}
	return nil
}

// AppendString opens path for append and writes value without a
// trailing newline, used for cgroup control files such as
// devices.allow where each write is one more granted rule rather than a
// replacement of the file's contents.
func AppendString(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(value); err != nil {
		return fmt.Errorf("%s: failed to write string: %w", path, err)
	}
	return nil
}

// ReadUint64 reads path and parses it as an unsigned integer, returning
// 0 on any read or parse failure, mirroring sysfsReadUint64's
// non-failing contract (it returns 0 rather than propagating an error).
func ReadUint64(path string) uint64 {
	s, err := ReadString(path)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0
	}
	return v
}

// WriteUint64 formats value in decimal and writes it to path.
func WriteUint64(path string, value uint64) error {
	return WriteString(path, strconv.FormatUint(value, 10))
}
