package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type ModelConfig struct {
	Provider  string
	Model     string
	Dimension int
}

// Config is loaded once in main and passed by value to every component.
type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings ModelConfig
	LLM        ModelConfig

	DataDir           string
	ReposDir          string
	GoogleCredentials string
	DriveFolderID     string
	ListenAddr        string

	ParentChunkSize     int
	ChildChunkSize      int
	GrandchildChunkSize int
	ChunkOverlap        int

	MaxFileSizeMB int
	MaxDocuments  int
}

func Load() Config {
	// Best effort; a missing .env just means plain environment lookup.
	_ = godotenv.Load()

	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/ragtree?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		OllamaHost:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: ModelConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDING_MODEL", "mxbai-embed-large"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 1024),
		},
		LLM: ModelConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.2:latest"),
		},

		DataDir:           getEnv("DATA_DIR", "./data"),
		ReposDir:          getEnv("REPOS_DIR", defaultReposDir()),
		GoogleCredentials: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DriveFolderID:     getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8080"),

		ParentChunkSize:     getEnvInt("PARENT_CHUNK_SIZE", 2000),
		ChildChunkSize:      getEnvInt("CHILD_CHUNK_SIZE", 500),
		GrandchildChunkSize: getEnvInt("GRANDCHILD_CHUNK_SIZE", 150),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 50),

		MaxFileSizeMB: getEnvInt("MAX_FILE_SIZE_MB", 10),
		MaxDocuments:  getEnvInt("MAX_DOCUMENTS_PER_BATCH", 0),
	}
}

func defaultReposDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./repos"
	}
	return home + "/Coding"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
