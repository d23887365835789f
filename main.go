package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mlefebvre/ragtree/api"
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

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "drive":
		driveCmd(cfg, logger, os.Args[2:])
	case "repos":
		reposCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to document directory")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	docs, err := hierarchy.LoadDirectory(*dataDir, hierarchy.LoadOptions{
		MaxFileBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
	}, logger)
	if err != nil {
		logger.Fatalf("load directory: %v", err)
	}

	runPipeline(ctx, cfg, logger, docs)
}

func driveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("drive", flag.ExitOnError)
	folderID := flags.String("folder", cfg.DriveFolderID, "Google Drive folder ID to index")
	maxDocs := flags.Int("max", cfg.MaxDocuments, "maximum number of documents to fetch (0 means no limit)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse drive flags: %v", err)
	}

	if strings.TrimSpace(*folderID) == "" {
		logger.Fatal("a Drive folder ID is required (set --folder or GOOGLE_DRIVE_FOLDER_ID)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loader, err := drive.NewLoader(ctx, cfg.GoogleCredentials, logger)
	if err != nil {
		logger.Fatalf("drive setup: %v", err)
	}

	docs, err := loader.LoadDocuments(ctx, *folderID, *maxDocs)
	if err != nil {
		logger.Fatalf("load drive documents: %v", err)
	}

	runPipeline(ctx, cfg, logger, docs)
}

func reposCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("repos", flag.ExitOnError)
	reposDir := flags.String("dir", cfg.ReposDir, "directory where repositories are cloned")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse repos flags: %v", err)
	}

	identifiers := flags.Args()
	if len(identifiers) == 0 {
		logger.Fatal("at least one owner/repo identifier is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loader := gitrepo.NewLoader(*reposDir, logger)
	docs, err := loader.LoadRepositories(ctx, identifiers)
	if err != nil {
		logger.Fatalf("load repositories: %v", err)
	}

	runPipeline(ctx, cfg, logger, docs)
}

func runPipeline(ctx context.Context, cfg config.Config, logger *log.Logger, docs []document.Document) {
	if len(docs) == 0 {
		logger.Fatal("no documents to index")
	}

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	split, err := splitter.New(splitter.Config{
		ParentSize:     cfg.ParentChunkSize,
		ChildSize:      cfg.ChildChunkSize,
		GrandchildSize: cfg.GrandchildChunkSize,
		Overlap:        cfg.ChunkOverlap,
	}, logger)
	if err != nil {
		logger.Fatalf("splitter setup: %v", err)
	}

	pipeline := index.NewPipeline(index.NewPostgresStore(pgPool), neo4jDriver, embedder, split, logger, cfg.Embeddings.Dimension)
	logger.Printf("indexing %d documents using %s/%s embeddings",
		len(docs), strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	stats, err := pipeline.IndexDocuments(ctx, docs)
	if err != nil {
		logger.Fatalf("indexing failed: %v", err)
	}

	logger.Printf("indexed %d documents: %d chunks created, %d chunks written",
		stats.Documents, stats.ChunksCreated, stats.ChunksWritten)
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "one-shot question (omit for an interactive session)")
	limit := flags.Int("limit", 5, "number of context chunks to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	retriever := chat.NewRetriever(chat.NewPostgresVectorStore(pgPool), logger)
	graphStore := chat.NewNeo4jGraphStore(neo4jDriver)
	svc := chat.NewService(retriever, graphStore, embedder, llmClient, logger)
	chatCfg := chat.Config{SimilarityLimit: *limit}

	if strings.TrimSpace(*question) != "" {
		resp, err := svc.Chat(ctx, *question, chatCfg)
		if err != nil {
			logger.Fatalf("chat failed: %v", err)
		}
		fmt.Println(resp.Answer)
		printSources(resp.Sources)
		return
	}

	interactiveChat(ctx, svc, chatCfg, logger)
}

func interactiveChat(ctx context.Context, svc *chat.Service, chatCfg chat.Config, logger *log.Logger) {
	fmt.Println("Interactive session. Type your question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var history []llm.Message
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read question: %v", err)
			}
			return
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return
		}

		resp, updated, err := svc.ChatStream(ctx, question, chatCfg, history, func(fragment string) error {
			fmt.Print(fragment)
			return nil
		})
		if err != nil {
			logger.Printf("chat failed: %v", err)
			continue
		}
		fmt.Println()
		printSources(resp.Sources)
		history = updated
	}
}

func printSources(sources []chat.Source) {
	if len(sources) == 0 {
		return
	}

	fmt.Println()
	fmt.Println("Sources:")
	for idx, source := range sources {
		location := source.HierarchyPath
		if location == "" {
			location = "root"
		}
		fmt.Printf("%d. %s (%s)", idx+1, source.FileName, location)
		if source.Merged {
			fmt.Print(" [expanded context]")
		}
		fmt.Println()
		if source.Insight.ChunkCount > 0 {
			fmt.Printf("   Indexed chunks: %d\n", source.Insight.ChunkCount)
		}
		if source.Insight.SiblingCount > 0 {
			fmt.Printf("   Related documents: %d", source.Insight.SiblingCount)
			if len(source.Insight.Siblings) > 0 {
				fmt.Printf(" (%s)", strings.Join(source.Insight.Siblings, ", "))
			}
			fmt.Println()
		}
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address for the HTTP API to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.New(cfg, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("HTTP API listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete indexed data from Postgres and Neo4j. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgPool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pgPool.Close()

	if err := api.ClearPostgres(ctx, pgPool); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Println("cleared Postgres chunks and index_runs")

	neo4jDriver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Fatalf("neo4j connection: %v", err)
	}
	defer neo4jDriver.Close(ctx)

	if err := api.ClearNeo4j(ctx, neo4jDriver); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Println("cleared Neo4j document graph")
	logger.Println("index data removed")
}

func printUsage() {
	fmt.Println("Usage: ragtree <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Index documents from a local directory (use --dir to override)")
	fmt.Println("  drive    Index documents from a Google Drive folder (--folder)")
	fmt.Println("  repos    Clone and index GitHub repositories (owner/repo ...)")
	fmt.Println("  chat     Query the indexed knowledge base (one-shot with --question, otherwise interactive)")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  clear    Remove indexed data from Postgres/Neo4j")
}
