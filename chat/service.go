package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mlefebvre/ragtree/embeddings"
	"github.com/mlefebvre/ragtree/llm"
)

const defaultSimilarityLimit = 5

type Service struct {
	retriever *Retriever
	graph     GraphStore
	embedder  embeddings.Embedder
	llm       llm.Client
	logger    *log.Logger
}

type Config struct {
	SimilarityLimit int
	CategoryFilters []string
}

func NewService(retriever *Retriever, graph GraphStore, embedder embeddings.Embedder, llmClient llm.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		retriever: retriever,
		graph:     graph,
		embedder:  embedder,
		llm:       llmClient,
		logger:    logger,
	}
}

func (s *Service) Chat(ctx context.Context, question string, cfg Config) (Response, error) {
	resp, _, err := s.chat(ctx, question, cfg, nil, nil)
	return resp, err
}

// ChatStream runs the chat workflow while optionally streaming the LLM
// output. history holds prior turns (excluding the system prompt) and is
// extended with the new user/assistant pair on success.
func (s *Service) ChatStream(
	ctx context.Context,
	question string,
	cfg Config,
	history []llm.Message,
	streamFn func(string) error,
) (Response, []llm.Message, error) {
	return s.chat(ctx, question, cfg, history, streamFn)
}

func (s *Service) chat(
	ctx context.Context,
	question string,
	cfg Config,
	history []llm.Message,
	streamFn func(string) error,
) (Response, []llm.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, nil, fmt.Errorf("question cannot be empty")
	}
	if s.embedder == nil {
		return Response{}, nil, fmt.Errorf("embedder is not configured")
	}
	if s.retriever == nil {
		return Response{}, nil, fmt.Errorf("retriever is not configured")
	}
	if s.llm == nil {
		return Response{}, nil, fmt.Errorf("llm client is not configured")
	}

	limit := cfg.SimilarityLimit
	if limit <= 0 {
		limit = defaultSimilarityLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Response{}, nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return Response{}, nil, fmt.Errorf("embedder returned no vectors")
	}

	chunks, err := s.retriever.Retrieve(ctx, vectors[0], limit)
	if err != nil {
		return Response{}, nil, fmt.Errorf("retrieve context: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.Printf("no context available for question, falling back to LLM-only response")
	}

	if len(cfg.CategoryFilters) > 0 && len(chunks) > 0 {
		filtered := filterChunksByCategory(chunks, cfg.CategoryFilters)
		if len(filtered) == 0 {
			return Response{}, nil, fmt.Errorf("no chunks matched the requested categories")
		}
		chunks = filtered
	}

	sources := s.buildSources(ctx, chunks)

	contextPrompt := ""
	if len(sources) > 0 {
		contextPrompt = buildContextPrompt(sources)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt()})
	messages = append(messages, history...)
	userMessage := llm.Message{Role: llm.RoleUser, Content: formatUserPrompt(question, contextPrompt)}
	messages = append(messages, userMessage)

	answer, err := s.generate(ctx, messages, streamFn)
	if err != nil {
		return Response{}, nil, err
	}

	answer = strings.TrimSpace(answer)
	updatedHistory := make([]llm.Message, 0, len(history)+2)
	updatedHistory = append(updatedHistory, history...)
	updatedHistory = append(updatedHistory, userMessage, llm.Message{Role: llm.RoleAssistant, Content: answer})

	return Response{Answer: answer, Sources: sources}, updatedHistory, nil
}

func (s *Service) generate(ctx context.Context, messages []llm.Message, streamFn func(string) error) (string, error) {
	if streamFn != nil {
		if streamClient, ok := s.llm.(llm.StreamClient); ok {
			var builder strings.Builder
			err := streamClient.GenerateStream(ctx, messages, func(fragment string) error {
				if fragment == "" {
					return nil
				}
				builder.WriteString(fragment)
				return streamFn(fragment)
			})
			if err != nil {
				return "", fmt.Errorf("llm stream generate: %w", err)
			}
			return builder.String(), nil
		}

		answer, err := s.llm.Generate(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("llm generate: %w", err)
		}
		if err := streamFn(answer); err != nil {
			return "", err
		}
		return answer, nil
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}
	return answer, nil
}

func (s *Service) buildSources(ctx context.Context, chunks []ChunkResult) []Source {
	grouped := make(map[string]*Source, len(chunks))
	order := make([]string, 0, len(chunks))

	for i := range chunks {
		chunk := chunks[i]
		source, ok := grouped[chunk.DocID]
		if !ok {
			source = &Source{
				DocID:         chunk.DocID,
				FileName:      chunk.FileName,
				Category:      chunk.Category,
				HierarchyPath: chunk.HierarchyPath,
				Score:         chunk.Score,
			}
			grouped[chunk.DocID] = source
			order = append(order, chunk.DocID)
		} else if chunk.Score > source.Score {
			source.Score = chunk.Score
		}
		if chunk.Merged {
			source.Merged = true
		}

		snippet := strings.TrimSpace(chunk.Content)
		if len(snippet) > 500 {
			snippet = snippet[:500] + "..."
		}
		if source.Snippet == "" {
			source.Snippet = snippet
		} else if !strings.Contains(source.Snippet, snippet) {
			source.Snippet += "\n---\n" + snippet
		}
	}

	if s.graph != nil {
		docIDs := make([]string, 0, len(order))
		docIDs = append(docIDs, order...)
		insights, err := s.graph.DocumentInsights(ctx, docIDs)
		if err != nil {
			s.logger.Printf("graph insights error: %v", err)
		} else {
			for docID, insight := range insights {
				if source, ok := grouped[docID]; ok {
					source.Insight = insight
				}
			}
		}
	}

	sources := make([]Source, 0, len(grouped))
	for _, docID := range order {
		sources = append(sources, *grouped[docID])
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})

	return sources
}

func filterChunksByCategory(chunks []ChunkResult, filters []string) []ChunkResult {
	wanted := make(map[string]bool, len(filters))
	for _, filter := range filters {
		filter = strings.ToLower(strings.TrimSpace(filter))
		if filter != "" {
			wanted[filter] = true
		}
	}
	if len(wanted) == 0 {
		return chunks
	}

	filtered := make([]ChunkResult, 0, len(chunks))
	for _, chunk := range chunks {
		if wanted[strings.ToLower(chunk.Category)] {
			filtered = append(filtered, chunk)
		}
	}
	return filtered
}

func buildContextPrompt(sources []Source) string {
	var sb strings.Builder
	for idx := range sources {
		source := &sources[idx]
		sb.WriteString(fmt.Sprintf("Source %d: %s", idx+1, source.FileName))
		if source.HierarchyPath != "" && source.HierarchyPath != "root" {
			sb.WriteString(fmt.Sprintf(" (%s)", source.HierarchyPath))
		}
		sb.WriteString("\n")
		if source.Category != "" && source.Category != "root" {
			sb.WriteString("Category: " + source.Category + "\n")
		}
		if source.Insight.SiblingCount > 0 {
			sb.WriteString(fmt.Sprintf("Related documents in this category: %d", source.Insight.SiblingCount))
			if len(source.Insight.Siblings) > 0 {
				sb.WriteString(" (" + strings.Join(source.Insight.Siblings, ", ") + ")")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(source.Snippet)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func systemPrompt() string {
	return "You are a helpful assistant. Use the supplied context to enrich and support your response, citing Source numbers in brackets (e.g., [Source 1]) when you draw from it. If the context is missing or not useful, rely on your general knowledge, note any uncertainty, and still deliver the best possible answer. Always answer the question first, then optionally add brief context notes."
}

func formatUserPrompt(question, context string) string {
	var sb strings.Builder
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	if strings.TrimSpace(context) != "" {
		sb.WriteString("\nContext (optional, may be incomplete):\n")
		sb.WriteString(context)
	}
	sb.WriteString("\nProvide your answer in markdown. Begin with the direct answer. If you reference the context, cite the relevant Source numbers.")
	return sb.String()
}
