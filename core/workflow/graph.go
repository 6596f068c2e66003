package workflow

import (
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrCycle is returned when the graph cannot be ordered; no node runs.
var ErrCycle = errors.New("cycle detected in workflow graph")

// Node is one normalized pipelet invocation site.
type Node struct {
	ID      string
	Pipelet string
	Code    string
	HasCode bool
	Targets []string
}

// parseGraph decodes the stored graph JSON into the normalized node set.
// Unknown shapes are tolerated: non-object nodes are skipped, edges to
// unknown ids are dropped at ordering time.
func parseGraph(text string) (map[string]*Node, error) {
	if text == "" {
		text = "{}"
	}
	var graph map[string]any
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	rawNodes, ok := graph["nodes"].(map[string]any)
	if !ok {
		return map[string]*Node{}, nil
	}
	nodes := make(map[string]*Node, len(rawNodes))
	for key, raw := range rawNodes {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := key
		if explicit, ok := obj["id"]; ok {
			id = idString(explicit)
		}
		n := &Node{ID: id}
		if data, ok := obj["data"].(map[string]any); ok {
			if code, ok := data["code"].(string); ok {
				n.Code = code
				n.HasCode = true
			}
			n.Pipelet = pipeletName(obj, data)
		} else {
			n.Pipelet = pipeletName(obj, nil)
		}
		n.Targets = targets(obj)
		nodes[id] = n
	}
	return nodes, nil
}

// pipeletName resolves the display name: data.pipelet.name, then data.name,
// then the node's own name field.
func pipeletName(obj, data map[string]any) string {
	if data != nil {
		if info, ok := data["pipelet"].(map[string]any); ok {
			if name, ok := info["name"].(string); ok {
				return name
			}
		}
		if name, ok := data["name"].(string); ok {
			return name
		}
	}
	if name, ok := obj["name"].(string); ok {
		return name
	}
	return ""
}

// targets collects the declared outgoing edges from the Drawflow-style
// outputs map.
func targets(obj map[string]any) []string {
	outputs, ok := obj["outputs"].(map[string]any)
	if !ok {
		return nil
	}
	var out []string
	for _, rawOut := range outputs {
		output, ok := rawOut.(map[string]any)
		if !ok {
			continue
		}
		connections, ok := output["connections"].([]any)
		if !ok {
			continue
		}
		for _, rawConn := range connections {
			conn, ok := rawConn.(map[string]any)
			if !ok {
				continue
			}
			target, ok := conn["node"]
			if !ok || target == nil {
				continue
			}
			out = append(out, idString(target))
		}
	}
	return out
}

// idString normalizes a node identifier to its canonical string form. Whole
// JSON numbers render without a decimal point so 1 and "1" address the same
// node.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type idHeap []string

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *idHeap) Pop() any          { old := *h; n := len(old); x := old[n-1]; *h = old[:n-1]; return x }

// topoOrder orders the nodes topologically, extracting the lexicographically
// smallest ready id first so the order is deterministic. Edges to unknown ids
// do not count. ErrCycle when any node remains unordered.
func topoOrder(nodes map[string]*Node) ([]string, error) {
	adjacency := make(map[string]map[string]bool, len(nodes))
	indegree := make(map[string]int, len(nodes))
	for id := range nodes {
		adjacency[id] = map[string]bool{}
		indegree[id] = 0
	}
	for id, n := range nodes {
		for _, target := range n.Targets {
			if _, known := nodes[target]; !known {
				continue
			}
			if adjacency[id][target] {
				continue
			}
			adjacency[id][target] = true
			indegree[target]++
		}
	}

	ready := &idHeap{}
	heap.Init(ready)
	for id, deg := range indegree {
		if deg == 0 {
			heap.Push(ready, id)
		}
	}

	ordered := make([]string, 0, len(nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		ordered = append(ordered, id)
		successors := make([]string, 0, len(adjacency[id]))
		for succ := range adjacency[id] {
			successors = append(successors, succ)
		}
		sort.Strings(successors)
		for _, succ := range successors {
			indegree[succ]--
			if indegree[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}
	if len(ordered) != len(nodes) {
		return nil, ErrCycle
	}
	return ordered, nil
}
