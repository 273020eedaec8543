package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Recognizer modes. Exactly one is active per process.
const (
	ModeOCR    = "ocr"
	ModeVision = "vision"
)

// Runtime is process-level configuration, read once from the environment.
type Runtime struct {
	DataDir    string
	ConfigPath string

	Interval      time.Duration
	CanvasWidth   int
	CanvasHeight  int
	CameraTimeout time.Duration

	Recognizer     string
	OCRLanguage    string
	TessdataPrefix string

	GeminiAPIKey  string
	VisionModel   string
	VisionTimeout time.Duration

	LogLevel string
}

// FromEnv builds a Runtime from METER_* variables, falling back to defaults.
func FromEnv() Runtime {
	dataDir := getEnv("METER_DATA_DIR", "data")
	rt := Runtime{
		DataDir:        dataDir,
		ConfigPath:     getEnv("METER_CONFIG", filepath.Join(dataDir, "config.json")),
		Interval:       getEnvDuration("METER_INTERVAL", 60*time.Second),
		CanvasWidth:    getEnvInt("METER_CANVAS_WIDTH", 1920),
		CanvasHeight:   getEnvInt("METER_CANVAS_HEIGHT", 1080),
		CameraTimeout:  getEnvDuration("METER_CAMERA_TIMEOUT", 15*time.Second),
		Recognizer:     strings.ToLower(getEnv("METER_RECOGNIZER", ModeOCR)),
		OCRLanguage:    getEnv("METER_OCR_LANGUAGE", "eng"),
		TessdataPrefix: os.Getenv("TESSDATA_PREFIX"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		VisionModel:    getEnv("METER_VISION_MODEL", "gemini-2.0-flash"),
		VisionTimeout:  getEnvDuration("METER_VISION_TIMEOUT", 30*time.Second),
		LogLevel:       strings.ToLower(getEnv("METER_LOG_LEVEL", "info")),
	}
	if rt.Recognizer != ModeOCR && rt.Recognizer != ModeVision {
		slog.Warn("unknown recognizer, using ocr", "recognizer", rt.Recognizer)
		rt.Recognizer = ModeOCR
	}
	return rt
}

// RawImagePath is where each successful capture lands.
func (r Runtime) RawImagePath() string {
	return filepath.Join(r.DataDir, "images", "latest.jpg")
}

// NormalizedImagePath is where the rotate+crop output is written for inspection.
func (r Runtime) NormalizedImagePath() string {
	return filepath.Join(r.DataDir, "images", "processed.jpg")
}

// ReadingsPath is the readings log.
func (r Runtime) ReadingsPath() string {
	return filepath.Join(r.DataDir, "readings.json")
}

// PositionTemplateDir holds the positional slices pos_<i>.png.
func (r Runtime) PositionTemplateDir() string {
	return filepath.Join(r.DataDir, "templates", "positions")
}

// ValueTemplateDir holds the per-digit references 0.png .. 9.png.
func (r Runtime) ValueTemplateDir() string {
	return filepath.Join(r.DataDir, "templates", "values")
}

// SlogLevel maps LogLevel onto a slog level.
func (r Runtime) SlogLevel() slog.Level {
	switch r.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
