package api

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the server settings.
type Config struct {
	Host        string
	Port        int
	WorkDir     string
	CORSOrigins []string
	MaxFileSize int64
	Workers     int
}

// DefaultMaxFileSize is the upload limit when MAX_FILE_SIZE is unset.
const DefaultMaxFileSize = 50 << 20

// ConfigFromEnv reads HOST, PORT, WORK_DIR, CORS_ORIGINS, MAX_FILE_SIZE
// and WORKERS, using defaults for unset or malformed values.
func ConfigFromEnv() Config {
	return Config{
		Host:        envString("HOST", "0.0.0.0"),
		Port:        envInt("PORT", 8001),
		WorkDir:     envString("WORK_DIR", filepath.Join(os.TempDir(), "drum2midi-jobs")),
		CORSOrigins: splitList(envString("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		MaxFileSize: int64(envInt("MAX_FILE_SIZE", DefaultMaxFileSize)),
		Workers:     envInt("WORKERS", 2),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
