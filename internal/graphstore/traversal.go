package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Path is an ordered sequence of entities connected by relationships.
type Path struct {
	Nodes []*Entity
	Rels  []*Relationship
}

// ConnectedEntities returns the set of entities reachable from the start
// entity within maxDepth hops, optionally restricted to relType.
func (p *Pool) ConnectedEntities(ctx context.Context, label, id, relType string, maxDepth int, limit int) ([]*Entity, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	if limit <= 0 {
		limit = 100
	}
	if p.connectedCap > 0 && limit > p.connectedCap {
		limit = p.connectedCap
	}
	relFrag := ""
	if relType != "" {
		relFrag = ":" + escapeRelType(relType)
	}

	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (start:%s {id: $id})
			MATCH (start)-[%s*1..%d]-(m)
			WHERE m <> start
			RETURN DISTINCT m, labels(m) as mLabels
			LIMIT $limit
		`, escapeLabel(label), relFrag, maxDepth)
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Entity, 0, len(records))
		for _, rec := range records {
			node, ok := rec.Get("m")
			if !ok {
				continue
			}
			mLabel := label
			if raw, ok := rec.Get("mLabels"); ok {
				if l := firstLabel(raw); l != "" {
					mLabel = l
				}
			}
			ent, err := nodeToEntity(mLabel, node)
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

// ShortestPath finds the shortest path between two entities, optionally
// restricted to relType, using Cypher's shortestPath function (grounded on
// the dependency-graph traversal pattern used elsewhere in the pack).
func (p *Pool) ShortestPath(ctx context.Context, fromLabel, fromID, toLabel, toID, relType string, maxDepth int) (*Path, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	relFrag := ""
	if relType != "" {
		relFrag = ":" + escapeRelType(relType)
	}

	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH path = shortestPath((a:%s {id: $fromId})-[%s*1..%d]-(b:%s {id: $toId}))
			RETURN path
			LIMIT 1
		`, escapeLabel(fromLabel), relFrag, maxDepth, escapeLabel(toLabel))
		res, err := tx.Run(ctx, cypher, map[string]any{"fromId": fromID, "toId": toID})
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
		raw, ok := records[0].Get("path")
		if !ok {
			return nil, nil
		}
		return pathFromRaw(raw)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, taxonomy.New(taxonomy.NotFound, "no path found between entities")
	}
	return result.(*Path), nil
}

// AllPaths returns every simple path between two entities up to maxDepth
// hops, capped at limit paths.
func (p *Pool) AllPaths(ctx context.Context, fromLabel, fromID, toLabel, toID, relType string, maxDepth, limit int) ([]*Path, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if limit <= 0 {
		limit = 20
	}
	relFrag := ""
	if relType != "" {
		relFrag = ":" + escapeRelType(relType)
	}

	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH path = (a:%s {id: $fromId})-[%s*1..%d]-(b:%s {id: $toId})
			RETURN path
			ORDER BY length(path) ASC
			LIMIT $limit
		`, escapeLabel(fromLabel), relFrag, maxDepth, escapeLabel(toLabel))
		res, err := tx.Run(ctx, cypher, map[string]any{"fromId": fromID, "toId": toID, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]*Path, 0, len(records))
		for _, rec := range records {
			raw, ok := rec.Get("path")
			if !ok {
				continue
			}
			path, err := pathFromRaw(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, path)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Path), nil
}

// Subgraph returns all entities and relationships within maxDepth hops of
// the start entity, suitable for client-side rendering.
func (p *Pool) Subgraph(ctx context.Context, label, id string, maxDepth, limit int) ([]*Entity, []*Relationship, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	if limit <= 0 {
		limit = 200
	}

	type subgraphResult struct {
		entities []*Entity
		rels     []*Relationship
	}

	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (start:%s {id: $id})
			CALL {
				WITH start
				MATCH p = (start)-[*0..%d]-(m)
				RETURN p
				LIMIT $limit
			}
			RETURN p
		`, escapeLabel(label), maxDepth)
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id, "limit": limit})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		seenEntities := map[string]*Entity{}
		seenRels := map[string]*Relationship{}
		for _, rec := range records {
			raw, ok := rec.Get("p")
			if !ok {
				continue
			}
			path, err := pathFromRaw(raw)
			if err != nil {
				return nil, err
			}
			for _, n := range path.Nodes {
				seenEntities[n.Label+"/"+n.ID] = n
			}
			for _, r := range path.Rels {
				seenRels[r.Type+"/"+r.FromID+"/"+r.ToID] = r
			}
		}

		out := subgraphResult{
			entities: make([]*Entity, 0, len(seenEntities)),
			rels:     make([]*Relationship, 0, len(seenRels)),
		}
		for _, e := range seenEntities {
			out.entities = append(out.entities, e)
		}
		for _, r := range seenRels {
			out.rels = append(out.rels, r)
		}
		return out, nil
	})
	if err != nil {
		return nil, nil, err
	}
	sg := result.(subgraphResult)
	return sg.entities, sg.rels, nil
}

// RelStat is one (type, neighbor label, count) row of an entity's
// relationship profile.
type RelStat struct {
	Type          string `json:"type"`
	NeighborLabel string `json:"neighborLabel"`
	Count         int64  `json:"count"`
}

// RelationshipStats profiles a single entity's edges: for each
// (relationship type, neighbor label) pair, how many edges touch the
// entity, sorted by count descending.
func (p *Pool) RelationshipStats(ctx context.Context, label, id string) ([]RelStat, error) {
	result, err := p.RunRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := fmt.Sprintf(`
			MATCH (n:%s {id: $id})-[r]-(m)
			RETURN type(r) as relType, labels(m) as neighborLabels, count(r) as c
			ORDER BY c DESC
		`, escapeLabel(label))
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		stats := make([]RelStat, 0, len(records))
		for _, rec := range records {
			relType, _ := rec.Get("relType")
			neighborLabels, _ := rec.Get("neighborLabels")
			c, _ := rec.Get("c")
			t, _ := relType.(string)
			n, _ := c.(int64)
			labels, _ := neighborLabels.([]any)
			stats = append(stats, RelStat{Type: t, NeighborLabel: firstLabel(labels), Count: n})
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]RelStat), nil
}

func pathFromRaw(raw any) (*Path, error) {
	neoPath, ok := raw.(neo4j.Path)
	if !ok {
		return nil, taxonomy.New(taxonomy.Internal, "unexpected path type from graph backend")
	}

	path := &Path{
		Nodes: make([]*Entity, 0, len(neoPath.Nodes)),
		Rels:  make([]*Relationship, 0, len(neoPath.Relationships)),
	}
	for _, n := range neoPath.Nodes {
		label := firstLabel(labelsToAny(n.Labels))
		ent, err := nodeToEntity(label, n)
		if err != nil {
			return nil, err
		}
		path.Nodes = append(path.Nodes, ent)
	}
	for _, r := range neoPath.Relationships {
		props := make(map[string]any, len(r.Props))
		for k, v := range r.Props {
			props[k] = v
		}
		path.Rels = append(path.Rels, &Relationship{
			Type:       r.Type,
			Properties: props,
		})
	}
	return path, nil
}

func labelsToAny(labels []string) []any {
	out := make([]any, len(labels))
	for i, l := range labels {
		out[i] = l
	}
	return out
}
