package logger

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// NewFromEnv builds a logger from LOG_MODE/LOG_LEVEL/LOG_DATA_DIR/LOG_MAX_SIZE.
// LOG_MODE selects stdout or file output; file mode writes a single
// LOG_DATA_DIR/monitor.log with no in-process rotation. LOG_MAX_SIZE is a
// human-readable byte size ("100MB", "1GB"); it is parsed only to validate
// it (a malformed value is an error) and is not enforced (see DESIGN.md).
func NewFromEnv() (*zap.Logger, error) {
	mode := strings.ToLower(os.Getenv("LOG_MODE"))
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	if level == "trace" {
		level = "debug"
	}

	outputs := []string{"stdout"}
	if mode == "file" {
		dir := os.Getenv("LOG_DATA_DIR")
		if dir == "" {
			dir = "."
		}
		outputs = []string{dir + "/monitor.log"}
	}

	if raw := os.Getenv("LOG_MAX_SIZE"); raw != "" {
		if _, err := parseByteSize(raw); err != nil {
			return nil, fmt.Errorf("logger: invalid LOG_MAX_SIZE %q: %w", raw, err)
		}
	}

	cfg := &Config{
		Level:       level,
		Encoding:    "json",
		OutputPaths: outputs,
		InitialFields: map[string]interface{}{
			"in_docker": os.Getenv("IN_DOCKER") == "true",
		},
	}
	return NewWithConfig(cfg)
}

// parseByteSize parses a human-readable size like "512KB", "100MB", "2GB".
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	units := map[string]int64{"B": 1, "KB": 1 << 10, "MB": 1 << 20, "GB": 1 << 30}
	for suffix, mult := range units {
		if strings.HasSuffix(s, suffix) {
			numPart := strings.TrimSpace(strings.TrimSuffix(s, suffix))
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, err
			}
			return int64(n * float64(mult)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized size format")
	}
	return n, nil
}
