package chat

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mlefebvre/ragtree/knowledge"
)

type GraphStore interface {
	DocumentInsights(ctx context.Context, docIDs []string) (map[string]knowledge.Insight, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) DocumentInsights(ctx context.Context, docIDs []string) (map[string]knowledge.Insight, error) {
	return knowledge.DocumentInsights(ctx, s.driver, docIDs)
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
