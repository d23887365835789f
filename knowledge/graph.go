// Package knowledge mirrors the document hierarchy into a Neo4j graph:
// documents hang off their folder chain and category so that chat can
// surface which part of the tree an answer came from and what else
// lives nearby.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	DocID          string
	FileName       string
	Source         string
	Category       string
	Subcategory    string
	HierarchyPath  string
	HierarchyLevel int
	ChunkCount     int
}

// Insight summarizes a document's position in the hierarchy graph.
type Insight struct {
	Category      string
	HierarchyPath string
	ChunkCount    int
	SiblingCount  int
	Siblings      []string
}

// SyncDocument upserts the document node, its category, and its folder
// chain. The folder chain is keyed by cumulative path so that folders with
// the same name in different subtrees stay distinct.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":              doc.DocID,
		"file_name":       doc.FileName,
		"source":          doc.Source,
		"category":        doc.Category,
		"subcategory":     doc.Subcategory,
		"hierarchy_path":  doc.HierarchyPath,
		"hierarchy_level": doc.HierarchyLevel,
		"chunk_count":     doc.ChunkCount,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.file_name = $file_name,
			    d.source = $source,
			    d.category = $category,
			    d.subcategory = $subcategory,
			    d.hierarchy_path = $hierarchy_path,
			    d.hierarchy_level = $hierarchy_level,
			    d.chunk_count = $chunk_count,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if doc.Category != "" {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})
				OPTIONAL MATCH (d)-[old:IN_CATEGORY]->(:Category)
				DELETE old
				MERGE (c:Category {name: $category})
				MERGE (d)-[:IN_CATEGORY]->(c)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert category relation: %w", err)
			}
		}

		if doc.HierarchyPath != "" && doc.HierarchyPath != "root" {
			segments := strings.Split(doc.HierarchyPath, "/")
			prevPath := ""
			for i, name := range segments {
				path := name
				if prevPath != "" {
					path = prevPath + "/" + name
				}
				folderParams := map[string]any{
					"path":      path,
					"name":      name,
					"prev_path": prevPath,
				}
				if _, err := tx.Run(ctx, `
					MERGE (f:Folder {path: $path})
					SET f.name = $name
				`, folderParams); err != nil {
					return nil, fmt.Errorf("upsert folder node %s: %w", path, err)
				}
				if prevPath != "" {
					if _, err := tx.Run(ctx, `
						MATCH (f:Folder {path: $path}), (p:Folder {path: $prev_path})
						MERGE (f)-[:CHILD_OF]->(p)
					`, folderParams); err != nil {
						return nil, fmt.Errorf("link folder chain %s: %w", path, err)
					}
				}
				if i == len(segments)-1 {
					if _, err := tx.Run(ctx, `
						MATCH (d:Document {id: $id}), (f:Folder {path: $path})
						MERGE (d)-[:IN_FOLDER]->(f)
					`, map[string]any{"id": doc.DocID, "path": path}); err != nil {
						return nil, fmt.Errorf("link document folder: %w", err)
					}
				}
				prevPath = path
			}
		}

		return nil, nil
	})

	return err
}

// DocumentInsights returns hierarchy context for each requested document:
// its category and up to five sibling documents in the same category.
func DocumentInsights(ctx context.Context, driver neo4j.DriverWithContext, docIDs []string) (map[string]Insight, error) {
	if driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(docIDs) == 0 {
		return map[string]Insight{}, nil
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, `
			MATCH (d:Document)
			WHERE d.id IN $ids
			OPTIONAL MATCH (d)-[:IN_CATEGORY]->(c:Category)
			OPTIONAL MATCH (c)<-[:IN_CATEGORY]-(sibling:Document)
			WHERE sibling.id <> d.id
			RETURN d.id AS id,
			       d.hierarchy_path AS hierarchy_path,
			       d.chunk_count AS chunk_count,
			       c.name AS category,
			       count(sibling) AS sibling_count,
			       collect(sibling.file_name)[..5] AS siblings
		`, map[string]any{"ids": docIDs})
		if err != nil {
			return nil, err
		}

		insights := make(map[string]Insight)
		for records.Next(ctx) {
			record := records.Record()
			insight := Insight{}

			id, _ := record.Get("id")
			if category, ok := record.Get("category"); ok && category != nil {
				insight.Category, _ = category.(string)
			}
			if path, ok := record.Get("hierarchy_path"); ok && path != nil {
				insight.HierarchyPath, _ = path.(string)
			}
			if count, ok := record.Get("chunk_count"); ok && count != nil {
				if v, ok := count.(int64); ok {
					insight.ChunkCount = int(v)
				}
			}
			if count, ok := record.Get("sibling_count"); ok && count != nil {
				if v, ok := count.(int64); ok {
					insight.SiblingCount = int(v)
				}
			}
			if raw, ok := record.Get("siblings"); ok && raw != nil {
				if list, ok := raw.([]any); ok {
					for _, item := range list {
						if name, ok := item.(string); ok && name != "" {
							insight.Siblings = append(insight.Siblings, name)
						}
					}
				}
			}

			if docID, ok := id.(string); ok {
				insights[docID] = insight
			}
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		return insights, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query document insights: %w", err)
	}

	return result.(map[string]Insight), nil
}
