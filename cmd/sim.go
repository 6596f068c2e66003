package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/cpflow/core/simulator"
	"github.com/kilianp07/cpflow/infra/logger"
)

var (
	simID    string
	simIDTag string
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run a scripted charge point session against a gateway",
	RunE:  runSim,
}

func init() {
	simCmd.Flags().StringVar(&simID, "id", "CP_1", "charge point id")
	simCmd.Flags().StringVar(&simIDTag, "id-tag", "TAG_1", "authorization tag")
	rootCmd.AddCommand(simCmd)
}

// runSim walks one charge point through a full session: boot, authorize,
// charge, stop, disconnect.
func runSim(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sim := simulator.New(cfg.Simulator, nil, logger.New("sim"))

	state, err := sim.Connect(simID)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Printf("connected as %s, heartbeat interval %ds\n", simID, state.Interval)

	if _, err := sim.StartHeartbeat(simID); err != nil {
		return fmt.Errorf("start heartbeat: %w", err)
	}
	if _, err := sim.Authorize(simID, simIDTag); err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	fmt.Printf("authorized %s\n", simIDTag)

	state, err = sim.StartTransaction(simID, simIDTag)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	fmt.Printf("transaction %d started\n", *state.TransactionID)

	time.Sleep(2 * time.Second)

	if _, err := sim.StopTransaction(simID); err != nil {
		return fmt.Errorf("stop transaction: %w", err)
	}
	fmt.Println("transaction stopped")

	if _, err := sim.StopHeartbeat(simID); err != nil {
		return fmt.Errorf("stop heartbeat: %w", err)
	}
	if _, err := sim.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	fmt.Println("disconnected")
	return nil
}
