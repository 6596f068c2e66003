package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cpflow/core/pipelet/builtins"
	"github.com/kilianp07/cpflow/core/workflow"
	"github.com/kilianp07/cpflow/infra/workflowstore"
)

var seedList bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install the built-in pipelet workflows",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedList, "list", false, "list built-in pipelets without installing")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedList {
		for _, p := range builtins.All() {
			fmt.Printf("%-25s %s\n", p.Name, p.Description)
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := workflowstore.NewSQLiteStore(cfg.Workflows.Path)
	if err != nil {
		return fmt.Errorf("workflow store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Println("failed to close workflow store:", err)
		}
	}()

	graph, err := chainedGraph(builtins.All())
	if err != nil {
		return err
	}
	def, err := store.Save(context.Background(), workflow.Definition{
		Name:  "Built-in StartTransaction chain",
		Event: "StartTransaction",
		Graph: graph,
	})
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	fmt.Printf("installed workflow %d (%s) for event %s\n", def.ID, def.Name, def.Event)
	return nil
}

// chainedGraph links the pipelets into a linear Drawflow graph, each node
// feeding the next.
func chainedGraph(pipelets []builtins.Pipelet) (string, error) {
	nodes := make(map[string]any, len(pipelets))
	for i, p := range pipelets {
		id := strconv.Itoa(i + 1)
		node := map[string]any{
			"id":   id,
			"name": p.Name,
			"data": map[string]any{
				"code":    p.Code,
				"pipelet": map[string]any{"name": p.Name},
			},
		}
		if i < len(pipelets)-1 {
			node["outputs"] = map[string]any{
				"output_1": map[string]any{
					"connections": []any{map[string]any{"node": strconv.Itoa(i + 2)}},
				},
			}
		}
		nodes[id] = node
	}
	raw, err := json.Marshal(map[string]any{"nodes": nodes})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
