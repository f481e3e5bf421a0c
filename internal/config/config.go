package config

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Session   SessionConfig
	Chunking  ChunkingConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
	DocsDir string
}

type RetrievalConfig struct {
	TopK int
}

type SessionConfig struct {
	MaxHistory int
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4800,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "qwen2.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			DocsDir: "./docs",
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Session: SessionConfig{
			MaxHistory: 2,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration as defaults, overlaid by the JSON file backend
// at $XDG_CONFIG_HOME/lectern/config.json, overlaid by LECTERN_* environment
// variables.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
