package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mlefebvre/ragtree/chat"
	"github.com/mlefebvre/ragtree/config"
	"github.com/mlefebvre/ragtree/database"
	"github.com/mlefebvre/ragtree/document"
	"github.com/mlefebvre/ragtree/drive"
	"github.com/mlefebvre/ragtree/embeddings"
	"github.com/mlefebvre/ragtree/gitrepo"
	"github.com/mlefebvre/ragtree/hierarchy"
	"github.com/mlefebvre/ragtree/index"
	"github.com/mlefebvre/ragtree/llm"
	"github.com/mlefebvre/ragtree/splitter"
)

const defaultChatLimit = 5

// Server exposes the indexing and chat workflows over HTTP.
type Server struct {
	cfg     config.Config
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type ingestRequest struct {
	Dir   string   `json:"dir"`
	Drive bool     `json:"drive"`
	Repos []string `json:"repos"`
}

type ingestResponse struct {
	Documents     int `json:"documents"`
	ChunksCreated int `json:"chunksCreated"`
	ChunksWritten int `json:"chunksWritten"`
}

type clearRequest struct {
	Confirm bool `json:"confirm"`
}

type chatRequest struct {
	Question   string   `json:"question"`
	Limit      int      `json:"limit"`
	Categories []string `json:"categories"`
}

type chatResponse struct {
	Answer  string       `json:"answer"`
	Sources []chatSource `json:"sources"`
}

type chatSource struct {
	DocID         string      `json:"docId"`
	FileName      string      `json:"fileName"`
	Category      string      `json:"category"`
	HierarchyPath string      `json:"hierarchyPath"`
	Snippet       string      `json:"snippet"`
	Score         float64     `json:"score"`
	Merged        bool        `json:"merged"`
	Insight       chatInsight `json:"insight"`
}

type chatInsight struct {
	ChunkCount   int      `json:"chunkCount"`
	SiblingCount int      `json:"siblingCount"`
	Siblings     []string `json:"siblings"`
}

// New constructs a Server that serves the HTTP API using the provided configuration.
func New(cfg config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{cfg: cfg, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ingest", s.handleIngest)
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/clear", s.handleClear)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	ctx := r.Context()

	docs, err := s.loadDocuments(ctx, req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(docs) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("no documents to ingest"))
		return
	}

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("embedder setup: %w", err))
		return
	}

	split, err := splitter.New(splitter.Config{
		ParentSize:     s.cfg.ParentChunkSize,
		ChildSize:      s.cfg.ChildChunkSize,
		GrandchildSize: s.cfg.GrandchildChunkSize,
		Overlap:        s.cfg.ChunkOverlap,
	}, s.logger)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("splitter setup: %w", err))
		return
	}

	pipeline := index.NewPipeline(index.NewPostgresStore(pgPool), neo4jDriver, embedder, split, s.logger, s.cfg.Embeddings.Dimension)
	s.logger.Printf("indexing %d documents using %s/%s embeddings",
		len(docs), strings.ToUpper(s.cfg.Embeddings.Provider), s.cfg.Embeddings.Model)

	stats, err := pipeline.IndexDocuments(ctx, docs)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("indexing failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, ingestResponse{
		Documents:     stats.Documents,
		ChunksCreated: stats.ChunksCreated,
		ChunksWritten: stats.ChunksWritten,
	})
}

func (s *Server) loadDocuments(ctx context.Context, req ingestRequest) ([]document.Document, error) {
	switch {
	case req.Drive:
		loader, err := drive.NewLoader(ctx, s.cfg.GoogleCredentials, s.logger)
		if err != nil {
			return nil, fmt.Errorf("drive setup: %w", err)
		}
		docs, err := loader.LoadDocuments(ctx, s.cfg.DriveFolderID, s.cfg.MaxDocuments)
		if err != nil {
			return nil, fmt.Errorf("load drive documents: %w", err)
		}
		return docs, nil

	case len(req.Repos) > 0:
		loader := gitrepo.NewLoader(s.cfg.ReposDir, s.logger)
		docs, err := loader.LoadRepositories(ctx, req.Repos)
		if err != nil {
			return nil, fmt.Errorf("load repositories: %w", err)
		}
		return docs, nil

	default:
		dir := strings.TrimSpace(req.Dir)
		if dir == "" {
			dir = s.cfg.DataDir
		}
		docs, err := hierarchy.LoadDirectory(dir, hierarchy.LoadOptions{
			MaxFileBytes: int64(s.cfg.MaxFileSizeMB) * 1024 * 1024,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("load directory: %w", err)
		}
		return docs, nil
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultChatLimit
	}

	ctx := r.Context()

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("embedder setup: %w", err))
		return
	}

	llmClient, err := llm.NewClient(s.cfg)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("llm setup: %w", err))
		return
	}

	retriever := chat.NewRetriever(chat.NewPostgresVectorStore(pgPool), s.logger)
	graphStore := chat.NewNeo4jGraphStore(neo4jDriver)
	svc := chat.NewService(retriever, graphStore, embedder, llmClient, s.logger)

	resp, err := svc.Chat(ctx, req.Question, chat.Config{
		SimilarityLimit: limit,
		CategoryFilters: req.Categories,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("chat failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, transformChatResponse(&resp))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if !req.Confirm {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("confirm must be true to clear data"))
		return
	}

	ctx := r.Context()

	pgPool, err := database.NewPostgresPool(ctx, s.cfg.PostgresDSN)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("postgres connection: %w", err))
		return
	}
	defer pgPool.Close()

	if err := ClearPostgres(ctx, pgPool); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Println("cleared Postgres chunks and index_runs")

	neo4jDriver, err := database.NewNeo4jDriver(ctx, s.cfg.Neo4jURI, s.cfg.Neo4jUser, s.cfg.Neo4jPass)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("neo4j connection: %w", err))
		return
	}
	defer neo4jDriver.Close(ctx)

	if err := ClearNeo4j(ctx, neo4jDriver); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Println("cleared Neo4j document graph")

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "index data cleared"})
}

// ClearPostgres drops all indexed chunks and run records. Shared with the
// CLI clear command.
func ClearPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE chunks, index_runs"); err != nil {
		return fmt.Errorf("truncate postgres tables: %w", err)
	}
	return nil
}

// ClearNeo4j removes every document, folder and category node.
func ClearNeo4j(ctx context.Context, driver neo4j.DriverWithContext) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, txErr := tx.Run(ctx, "MATCH (n) WHERE n:Document OR n:Folder OR n:Category DETACH DELETE n", nil)
		return nil, txErr
	})
	if err != nil {
		return fmt.Errorf("clear neo4j: %w", err)
	}
	return nil
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func transformChatResponse(resp *chat.Response) chatResponse {
	if resp == nil {
		return chatResponse{}
	}

	converted := chatResponse{Answer: resp.Answer}
	if len(resp.Sources) == 0 {
		return converted
	}

	sources := make([]chatSource, len(resp.Sources))
	for i, src := range resp.Sources {
		sources[i] = chatSource{
			DocID:         src.DocID,
			FileName:      src.FileName,
			Category:      src.Category,
			HierarchyPath: src.HierarchyPath,
			Snippet:       src.Snippet,
			Score:         src.Score,
			Merged:        src.Merged,
			Insight: chatInsight{
				ChunkCount:   src.Insight.ChunkCount,
				SiblingCount: src.Insight.SiblingCount,
				Siblings:     append([]string(nil), src.Insight.Siblings...),
			},
		}
	}
	converted.Sources = sources
	return converted
}
