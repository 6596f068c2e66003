package cmd

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/cpflow/core/pipelet/builtins"
)

func TestChainedGraphShape(t *testing.T) {
	pipelets := builtins.All()
	raw, err := chainedGraph(pipelets)
	require.NoError(t, err)

	var graph struct {
		Nodes map[string]struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Data struct {
				Code string `json:"code"`
			} `json:"data"`
			Outputs map[string]struct {
				Connections []struct {
					Node string `json:"node"`
				} `json:"connections"`
			} `json:"outputs"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &graph))
	require.Len(t, graph.Nodes, len(pipelets))

	for i := range pipelets {
		id := strconv.Itoa(i + 1)
		node, ok := graph.Nodes[id]
		require.True(t, ok, "node %s missing", id)
		assert.Equal(t, pipelets[i].Name, node.Name)
		assert.NotEmpty(t, node.Data.Code)
		if i < len(pipelets)-1 {
			require.Len(t, node.Outputs, 1)
			assert.Equal(t, strconv.Itoa(i+2), node.Outputs["output_1"].Connections[0].Node)
		} else {
			assert.Empty(t, node.Outputs)
		}
	}
}
