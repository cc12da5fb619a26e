package logging

type Config struct {
	Format string
	Level  string
	Output string
	// MaxSizeMB rotates file outputs once they grow past this size.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
}

func DefaultConfig() Config {
	return Config{
		Format:     FormatText,
		Level:      LevelInfo,
		Output:     "stderr",
		MaxSizeMB:  100,
		MaxBackups: 5,
	}
}

const (
	FormatJSONL = "jsonl"
	FormatText  = "text"
	FormatNone  = "none"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

func levelPriority(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1 // default to info
	}
}
