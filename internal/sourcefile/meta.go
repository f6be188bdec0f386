package sourcefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"dbk-go/internal/model"
)

// MetaSuffix is appended to a source file name to find its sidecar.
const MetaSuffix = ".meta-inf"

var hashPattern = regexp.MustCompile(`(?i)^[0-9a-f]{64}$`)

// MetaPath returns the sidecar path for a source file.
func MetaPath(path string) string { return path + MetaSuffix }

// IsMetaFile reports whether name is a sidecar file.
func IsMetaFile(name string) bool { return strings.HasSuffix(name, MetaSuffix) }

// ReadMeta reads the sidecar next to path. A missing sidecar yields an empty
// FileMeta. Anything malformed is logged and ignored: a bad sidecar never
// fails the caller.
func ReadMeta(path string, logger Logger) model.FileMeta {
	var meta model.FileMeta
	data, err := os.ReadFile(MetaPath(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("cannot read sidecar", "path", MetaPath(path), "error", err)
		}
		return meta
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		logger.Warn("malformed sidecar", "path", MetaPath(path), "error", err)
		return meta
	}

	if v, ok := raw["hash"]; ok {
		if h, err := parseHash(v); err != nil {
			logger.Warn("ignoring sidecar hash", "path", MetaPath(path), "error", err)
		} else {
			meta.Hash = h
		}
	}
	if v, ok := raw["priority"]; ok {
		var p int
		if err := json.Unmarshal(v, &p); err != nil || p < 0 {
			logger.Warn("ignoring sidecar priority", "path", MetaPath(path), "value", string(v))
		} else {
			meta.Priority = &p
		}
	}
	if v, ok := raw["maxcopies"]; ok {
		var mc model.MaxCopies
		if err := json.Unmarshal(v, &mc); err != nil {
			logger.Warn("ignoring sidecar maxcopies", "path", MetaPath(path), "error", err)
		} else {
			meta.MaxCopies = &mc
		}
	}
	return meta
}

func parseHash(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("hash must be a string")
	}
	if !hashPattern.MatchString(s) {
		return "", fmt.Errorf("hash %q is not 64 hex characters", s)
	}
	return strings.ToLower(s), nil
}
