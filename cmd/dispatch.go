package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dispatchsim/engine/app"
	"github.com/dispatchsim/engine/config"
	"github.com/dispatchsim/engine/infra/logger"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <mission-id>",
	Short: "Run auto-dispatch for a mission and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  dispatchMission,
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchMission(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("dispatch-command")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logg.Errorf("service close: %v", err)
		}
	}()

	res, err := svc.Dispatcher.AutoDispatch(args[0])
	if err != nil {
		return fmt.Errorf("dispatch mission %s: %w", args[0], err)
	}
	for _, id := range res.SelectedUnitIDs {
		fmt.Printf("unit %s acknowledged=%v\n", id, res.Acknowledged[id])
	}
	for _, unmet := range res.Unmet {
		fmt.Printf("unmet: %s\n", unmet)
	}
	for id, derr := range res.Errors {
		logg.Errorf("alert %s failed: %v", id, derr)
	}
	return nil
}
