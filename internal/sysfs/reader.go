// Package sysfs reads and writes kernel-exposed telemetry attributes.
//
// Every path is resolved against a root prefix so tests and alternative
// deployments can point the reader at a fake tree.
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/healthd/internal/errors"
	"codeberg.org/mutker/healthd/internal/logger"
)

const defaultFilePerm = 0o644

// Reader gives read and write access to sysfs attributes under a root.
type Reader struct {
	root   string
	logger logger.Logger
}

// New returns a Reader resolving paths against root. An empty root means "/".
func New(root string, log logger.Logger) *Reader {
	if root == "" {
		root = "/"
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Reader{root: root, logger: log.With("sysfs")}
}

// Path returns the absolute location of p under the reader's root.
func (r *Reader) Path(p string) string {
	return filepath.Join(r.root, p)
}

// Exists reports whether p is present.
func (r *Reader) Exists(p string) bool {
	_, err := os.Stat(r.Path(p))
	return err == nil
}

// List returns the sorted entry names of directory p.
func (r *Reader) List(p string) ([]string, error) {
	entries, err := os.ReadDir(r.Path(p))
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrSourceUnavailable, err).WithData(p)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	return names, nil
}

// ReadString returns the trimmed contents of p.
func (r *Reader) ReadString(p string) (string, error) {
	data, err := os.ReadFile(r.Path(p))
	if err != nil {
		return "", errors.New().Wrap(errors.ErrSourceUnavailable, err).WithData(p)
	}

	return strings.TrimSpace(string(data)), nil
}

// ReadFields returns the whitespace separated tokens of p.
func (r *Reader) ReadFields(p string) ([]string, error) {
	s, err := r.ReadString(p)
	if err != nil {
		return nil, err
	}

	return strings.Fields(s), nil
}

// ReadInt parses the first token of p, detecting the base from its prefix
// (0x for hexadecimal, 0 for octal, decimal otherwise).
func (r *Reader) ReadInt(p string) (int64, error) {
	return r.readInt(p, 0)
}

// ReadDecimal parses the first token of p as a base 10 integer.
func (r *Reader) ReadDecimal(p string) (int64, error) {
	return r.readInt(p, 10)
}

// ReadHex parses the first token of p as hexadecimal, with or without 0x.
func (r *Reader) ReadHex(p string) (uint64, error) {
	fields, err := r.ReadFields(p)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, errors.New().WithData(errors.ErrSourceParse, p)
	}

	token := strings.TrimPrefix(strings.ToLower(fields[0]), "0x")
	v, err := strconv.ParseUint(token, 16, 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrSourceParse, err).WithData(p)
	}

	return v, nil
}

// ReadInts parses every token of p as a decimal integer.
func (r *Reader) ReadInts(p string) ([]int64, error) {
	fields, err := r.ReadFields(p)
	if err != nil {
		return nil, err
	}

	values := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.New().Wrap(errors.ErrSourceParse, err).WithData(p)
		}
		values[i] = v
	}

	return values, nil
}

func (r *Reader) readInt(p string, base int) (int64, error) {
	fields, err := r.ReadFields(p)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, errors.New().WithData(errors.ErrSourceParse, p)
	}

	v, err := strconv.ParseInt(fields[0], base, 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrSourceParse, err).WithData(p)
	}

	return v, nil
}

// IntOr returns the auto-base value of p, or def when p is missing or
// malformed. Failures are logged as warnings.
func (r *Reader) IntOr(p string, def int64) int64 {
	v, err := r.ReadInt(p)
	if err != nil {
		r.warn(p, err)
		return def
	}

	return v
}

// HexOr returns the hexadecimal value of p, or def on failure.
func (r *Reader) HexOr(p string, def uint64) uint64 {
	v, err := r.ReadHex(p)
	if err != nil {
		r.warn(p, err)
		return def
	}

	return v
}

// StringOr returns the contents of p, or def on failure.
func (r *Reader) StringOr(p, def string) string {
	v, err := r.ReadString(p)
	if err != nil {
		r.warn(p, err)
		return def
	}

	return v
}

// Write replaces the contents of an attribute. Sysfs attributes are
// written in place; they cannot be renamed over.
func (r *Reader) Write(p, value string) error {
	if err := os.WriteFile(r.Path(p), []byte(value), defaultFilePerm); err != nil {
		return errors.New().Wrap(errors.ErrSourceWrite, err).WithData(p)
	}

	return nil
}

func (r *Reader) warn(p string, err error) {
	r.logger.Warn().Code(err).Err(err).Str("path", p).Msg("Cannot read")
}
