package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Entity is a node in the graph: a label, a user-supplied id unique within
// that label, and an open-ended property map.
type Entity struct {
	Label      string
	ID         string
	Properties map[string]any
}

// CreateEntity inserts a node, setting Properties["id"] from id. Fails with
// Duplicate if (label, id) already exists.
func (p *Pool) CreateEntity(ctx context.Context, label, id string, props map[string]any) (*Entity, error) {
	if label == "" || id == "" {
		return nil, taxonomy.New(taxonomy.InvalidInput, "label and id are required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	merged := cloneProps(props)
	merged["id"] = id
	if _, ok := merged["created_at"]; !ok {
		merged["created_at"] = now
	}
	merged["updated_at"] = now

	_, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		checkRes, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n LIMIT 1", escapeLabel(label)), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		existing, err := checkRes.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, taxonomy.New(taxonomy.Duplicate, fmt.Sprintf("entity %s/%s already exists", label, id))
		}

		createCypher := fmt.Sprintf("CREATE (n:%s) SET n = $props RETURN n", escapeLabel(label))
		_, err = tx.Run(ctx, createCypher, map[string]any{"props": merged})
		return nil, err
	})
	if err != nil {
		return nil, err
	}

	return &Entity{Label: label, ID: id, Properties: merged}, nil
}

// CreateEntityBatch is atomic per transaction: partial failure rolls back all.
func (p *Pool) CreateEntityBatch(ctx context.Context, label string, items []map[string]any) ([]*Entity, error) {
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		created := make([]*Entity, 0, len(items))
		for _, props := range items {
			id, _ := props["id"].(string)
			if id == "" {
				return nil, taxonomy.New(taxonomy.InvalidInput, "each item requires props.id")
			}
			checkRes, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n LIMIT 1", escapeLabel(label)), map[string]any{"id": id})
			if err != nil {
				return nil, err
			}
			existing, err := checkRes.Collect(ctx)
			if err != nil {
				return nil, err
			}
			if len(existing) > 0 {
				return nil, taxonomy.New(taxonomy.Duplicate, fmt.Sprintf("entity %s/%s already exists", label, id))
			}

			merged := cloneProps(props)
			merged["created_at"] = now
			merged["updated_at"] = now
			if _, err := tx.Run(ctx, fmt.Sprintf("CREATE (n:%s) SET n = $props", escapeLabel(label)), map[string]any{"props": merged}); err != nil {
				return nil, err
			}
			created = append(created, &Entity{Label: label, ID: id, Properties: merged})
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Entity), nil
}

// GetEntity returns the node's properties, or NotFound.
func (p *Pool) GetEntity(ctx context.Context, label, id string) (*Entity, error) {
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN n", escapeLabel(label)), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		node, ok := records[0].Get("n")
		if !ok {
			return nil, nil
		}
		return nodeToEntity(label, node)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, taxonomy.New(taxonomy.NotFound, fmt.Sprintf("entity %s/%s not found", label, id))
	}
	return result.(*Entity), nil
}

// FindEntities returns up to limit nodes matching match by equality.
func (p *Pool) FindEntities(ctx context.Context, label string, match map[string]any, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		where, params := whereClause("n", match)
		cypher := fmt.Sprintf("MATCH (n:%s) %s RETURN n LIMIT $limit", escapeLabel(label), where)
		params["limit"] = limit
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Entity, 0, len(records))
		for _, rec := range records {
			node, ok := rec.Get("n")
			if !ok {
				continue
			}
			ent, err := nodeToEntity(label, node)
			if err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Entity), nil
}

// UpdateEntity merges props into the existing node and refreshes updated_at.
func (p *Pool) UpdateEntity(ctx context.Context, label, id string, props map[string]any) (*Entity, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	merged := cloneProps(props)
	delete(merged, "id")
	delete(merged, "created_at")
	merged["updated_at"] = now

	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (n:%s {id: $id})
			SET n += $props
			RETURN n
		`, escapeLabel(label)), map[string]any{"id": id, "props": merged})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		node, _ := records[0].Get("n")
		return nodeToEntity(label, node)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, taxonomy.New(taxonomy.NotFound, fmt.Sprintf("entity %s/%s not found", label, id))
	}
	return result.(*Entity), nil
}

// DeleteEntity performs DETACH DELETE and returns whether a node was removed.
func (p *Pool) DeleteEntity(ctx context.Context, label, id string) (bool, error) {
	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (n:%s {id: $id})
			DETACH DELETE n
			RETURN count(n) as deleted
		`, escapeLabel(label)), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return false, nil
		}
		deleted, _ := rec.Get("deleted")
		n, _ := deleted.(int64)
		return n > 0, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// CountEntities returns the number of nodes with the given label.
func (p *Pool) CountEntities(ctx context.Context, label string) (int64, error) {
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) as c", escapeLabel(label)), nil)
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return int64(0), nil
		}
		c, _ := rec.Get("c")
		n, _ := c.(int64)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// SearchByText matches on a case-insensitive substring across fields, OR'd.
func (p *Pool) SearchByText(ctx context.Context, label, query string, fields []string, limit int) ([]*Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	if len(fields) == 0 {
		return nil, taxonomy.New(taxonomy.InvalidInput, "at least one field is required")
	}
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		clauses := make([]string, 0, len(fields))
		for _, f := range fields {
			clauses = append(clauses, fmt.Sprintf("toLower(toString(n.%s)) CONTAINS toLower($q)", escapeIdent(f)))
		}
		where := "WHERE " + joinOr(clauses)
		cypher := fmt.Sprintf("MATCH (n:%s) %s RETURN n LIMIT $limit", escapeLabel(label), where)
		res, err := tx.Run(ctx, cypher, map[string]any{"q": query, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Entity, 0, len(records))
		for _, rec := range records {
			node, ok := rec.Get("n")
			if !ok {
				continue
			}
			ent, err := nodeToEntity(label, node)
			if err != nil {
				return nil, err
			}
			out = append(out, ent)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Entity), nil
}

func nodeToEntity(label string, node any) (*Entity, error) {
	n, ok := node.(neo4j.Node)
	if !ok {
		return nil, taxonomy.New(taxonomy.Internal, "unexpected node type from graph backend")
	}
	props := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}
	id, _ := props["id"].(string)
	return &Entity{Label: label, ID: id, Properties: props}, nil
}

func cloneProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
