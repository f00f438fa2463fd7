package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/fedgraph/errors"
)

// Limits applied to configuration input. A subgraph config is a few
// kilobytes; anything near these bounds is a mistake or an attack.
const (
	maxConfigSize = 1 << 20
	maxJSONDepth  = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

// validateConfigPath accepts absolute paths and relative paths that stay
// inside the working directory. Only .json files are loaded.
func validateConfigPath(path string) error {
	switch {
	case path == "":
		return errors.WrapInvalid(errors.ErrMissingConfig, "Loader", "validateConfigPath", "empty path")
	case len(path) > maxPathLen:
		return errors.WrapInvalid(fmt.Errorf("path length %d exceeds %d", len(path), maxPathLen),
			"Loader", "validateConfigPath", "length check")
	case filepath.Ext(path) != ".json":
		return errors.WrapInvalid(fmt.Errorf("%s is not a .json file", path),
			"Loader", "validateConfigPath", "extension check")
	}

	if filepath.IsAbs(path) {
		return nil
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return errors.WrapInvalid(fmt.Errorf("%s resolves outside the working directory", path),
			"Loader", "validateConfigPath", "traversal check")
	}
	return nil
}

// readConfigFile reads a validated, regular, size-bounded config file.
func readConfigFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "readConfigFile", "stat "+path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(fmt.Errorf("%s is not a regular file", path),
			"Loader", "readConfigFile", "mode check")
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(fmt.Errorf("%d bytes exceeds %d", info.Size(), maxConfigSize),
			"Loader", "readConfigFile", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "readConfigFile", "read "+path)
	}
	return data, nil
}

// writeConfigFile writes data with owner-only permissions, replacing path
// atomically. The config may carry NATS and Redis credentials.
func writeConfigFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return err
	}
	if len(data) > maxConfigSize {
		return errors.WrapInvalid(fmt.Errorf("%d bytes exceeds %d", len(data), maxConfigSize),
			"Config", "SaveToFile", "size check")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "Config", "SaveToFile", "write temp file")
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "Config", "SaveToFile", "chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "rename into place")
	}
	return nil
}

// validateEnvVar checks one override read from the environment. Only
// variables under the loader's prefix are accepted.
func validateEnvVar(prefix, key, value string) error {
	if !strings.HasPrefix(key, prefix+"_") {
		return fmt.Errorf("%s is not a %s_* variable", key, prefix)
	}
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("%s is %d bytes, limit %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsAny(value, "\x00\r\n") {
		return fmt.Errorf("%s contains a control character", key)
	}
	return nil
}

// validateJSONDepth walks the token stream of data and rejects nesting
// deeper than maxJSONDepth and unbalanced documents.
func validateJSONDepth(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("malformed JSON at offset %d: %w", dec.InputOffset(), err)
		}

		delim, ok := tok.(json.Delim)
		if !ok {
			continue
		}
		switch delim {
		case '{', '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("nesting depth exceeds %d at offset %d", maxJSONDepth, dec.InputOffset())
			}
		case '}', ']':
			depth--
		}
	}

	if depth != 0 {
		return fmt.Errorf("malformed JSON: %d unclosed brackets", depth)
	}
	return nil
}
