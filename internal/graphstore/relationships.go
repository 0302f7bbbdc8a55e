package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Relationship is a typed, directed edge between two entities, carrying its
// own open-ended property map.
type Relationship struct {
	Type       string
	FromLabel  string
	FromID     string
	ToLabel    string
	ToID       string
	Properties map[string]any
}

// CreateRelationship connects two existing nodes with a MERGE on the edge
// so repeated calls with the same endpoints and type are idempotent.
func (p *Pool) CreateRelationship(ctx context.Context, relType, fromLabel, fromID, toLabel, toID string, props map[string]any) (*Relationship, error) {
	if relType == "" || fromID == "" || toID == "" {
		return nil, taxonomy.New(taxonomy.InvalidInput, "type, from id, and to id are required")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	merged := cloneProps(props)
	merged["created_at"] = now

	_, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		checkCypher := fmt.Sprintf(`
			MATCH (a:%s {id: $fromId}), (b:%s {id: $toId})
			RETURN a, b
		`, escapeLabel(fromLabel), escapeLabel(toLabel))
		res, err := tx.Run(ctx, checkCypher, map[string]any{"fromId": fromID, "toId": toID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, taxonomy.New(taxonomy.NotFound, "one or both endpoint entities do not exist")
		}

		createCypher := fmt.Sprintf(`
			MATCH (a:%s {id: $fromId}), (b:%s {id: $toId})
			MERGE (a)-[r:%s]->(b)
			SET r += $props
			RETURN r
		`, escapeLabel(fromLabel), escapeLabel(toLabel), escapeRelType(relType))
		_, err = tx.Run(ctx, createCypher, map[string]any{"fromId": fromID, "toId": toID, "props": merged})
		return nil, err
	})
	if err != nil {
		return nil, err
	}

	return &Relationship{
		Type: relType, FromLabel: fromLabel, FromID: fromID,
		ToLabel: toLabel, ToID: toID, Properties: merged,
	}, nil
}

// GetRelationshipsFor returns all relationships of relType touching the
// given entity, in the given direction ("out", "in", or "" for both).
func (p *Pool) GetRelationshipsFor(ctx context.Context, label, id, relType, direction string, limit int) ([]*Relationship, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := relPattern(escapeRelType(relType), direction)

	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (n:%s {id: $id})%s(m)
			RETURN r, labels(m) as toLabels, m.id as toId, startNode(r).id as startId
			LIMIT $limit
		`, escapeLabel(label), pattern)
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Relationship, 0, len(records))
		for _, rec := range records {
			relVal, ok := rec.Get("r")
			if !ok {
				continue
			}
			rel, ok := relVal.(neo4j.Relationship)
			if !ok {
				continue
			}
			toID, _ := rec.Get("toId")
			startID, _ := rec.Get("startId")
			toIDStr, _ := toID.(string)
			startIDStr, _ := startID.(string)

			fromID, toIDOut := id, toIDStr
			if startIDStr != id {
				fromID, toIDOut = toIDStr, id
			}

			props := make(map[string]any, len(rel.Props))
			for k, v := range rel.Props {
				props[k] = v
			}
			out = append(out, &Relationship{
				Type:       rel.Type,
				FromLabel:  label,
				FromID:     fromID,
				ToLabel:    label,
				ToID:       toIDOut,
				Properties: props,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Relationship), nil
}

// FindRelationships returns relationships of relType matching the given
// property equality filter.
func (p *Pool) FindRelationships(ctx context.Context, relType string, match map[string]any, limit int) ([]*Relationship, error) {
	if limit <= 0 {
		limit = 100
	}
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		where, params := whereClause("r", match)
		cypher := fmt.Sprintf(`
			MATCH (a)-[r:%s]->(b)
			%s
			RETURN r, a.id as fromId, labels(a) as fromLabels, b.id as toId, labels(b) as toLabels
			LIMIT $limit
		`, escapeRelType(relType), where)
		params["limit"] = limit
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Relationship, 0, len(records))
		for _, rec := range records {
			relVal, ok := rec.Get("r")
			if !ok {
				continue
			}
			rel, ok := relVal.(neo4j.Relationship)
			if !ok {
				continue
			}
			fromID, _ := rec.Get("fromId")
			toID, _ := rec.Get("toId")
			fromLabels, _ := rec.Get("fromLabels")
			toLabels, _ := rec.Get("toLabels")

			props := make(map[string]any, len(rel.Props))
			for k, v := range rel.Props {
				props[k] = v
			}
			out = append(out, &Relationship{
				Type:       rel.Type,
				FromLabel:  firstLabel(fromLabels),
				FromID:     fmt.Sprint(fromID),
				ToLabel:    firstLabel(toLabels),
				ToID:       fmt.Sprint(toID),
				Properties: props,
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Relationship), nil
}

// UpdateRelationship merges props into a single matching edge.
func (p *Pool) UpdateRelationship(ctx context.Context, relType, fromLabel, fromID, toLabel, toID string, props map[string]any) (*Relationship, error) {
	merged := cloneProps(props)
	merged["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (a:%s {id: $fromId})-[r:%s]->(b:%s {id: $toId})
			SET r += $props
			RETURN r
		`, escapeLabel(fromLabel), escapeRelType(relType), escapeLabel(toLabel))
		res, err := tx.Run(ctx, cypher, map[string]any{"fromId": fromID, "toId": toID, "props": merged})
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
		relVal, _ := records[0].Get("r")
		rel, ok := relVal.(neo4j.Relationship)
		if !ok {
			return nil, taxonomy.New(taxonomy.Internal, "unexpected relationship type from graph backend")
		}
		props := make(map[string]any, len(rel.Props))
		for k, v := range rel.Props {
			props[k] = v
		}
		return &Relationship{Type: relType, FromLabel: fromLabel, FromID: fromID, ToLabel: toLabel, ToID: toID, Properties: props}, nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, taxonomy.New(taxonomy.NotFound, "relationship not found")
	}
	return result.(*Relationship), nil
}

// DeleteRelationship removes a single matching edge.
func (p *Pool) DeleteRelationship(ctx context.Context, relType, fromLabel, fromID, toLabel, toID string) (bool, error) {
	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (a:%s {id: $fromId})-[r:%s]->(b:%s {id: $toId})
			DELETE r
			RETURN count(r) as deleted
		`, escapeLabel(fromLabel), escapeRelType(relType), escapeLabel(toLabel))
		res, err := tx.Run(ctx, cypher, map[string]any{"fromId": fromID, "toId": toID})
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

// DeleteAllRelationshipsFor removes every edge of relType touching the
// given entity, returning the count removed.
func (p *Pool) DeleteAllRelationshipsFor(ctx context.Context, label, id, relType string) (int64, error) {
	result, err := p.RunWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (n:%s {id: $id})-[r:%s]-()
			DELETE r
			RETURN count(r) as deleted
		`, escapeLabel(label), escapeRelType(relType))
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return int64(0), nil
		}
		deleted, _ := rec.Get("deleted")
		n, _ := deleted.(int64)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// CountRelationshipsFor counts edges of relType touching the given entity.
func (p *Pool) CountRelationshipsFor(ctx context.Context, label, id, relType, direction string) (int64, error) {
	pattern := relPattern(escapeRelType(relType), direction)
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (n:%s {id: $id})%s(m)
			RETURN count(*) as c
		`, escapeLabel(label), pattern)
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
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

func relPattern(relType, direction string) string {
	rel := "r"
	if relType != "" {
		rel = "r:" + relType
	}
	switch direction {
	case "out":
		return fmt.Sprintf("-[%s]->", rel)
	case "in":
		return fmt.Sprintf("<-[%s]-", rel)
	default:
		return fmt.Sprintf("-[%s]-", rel)
	}
}

func escapeRelType(relType string) string {
	if relType == "" {
		return ""
	}
	if !identPattern.MatchString(relType) {
		return "RELATED_TO"
	}
	return relType
}

func firstLabel(v any) string {
	labels, ok := v.([]any)
	if !ok || len(labels) == 0 {
		return ""
	}
	s, _ := labels[0].(string)
	return s
}
