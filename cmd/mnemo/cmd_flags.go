package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "List and toggle feature flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature flags",
	RunE:  flagsList,
}

var flagsSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Create or update a flag",
	Args:  cobra.ExactArgs(1),
	RunE:  flagsSet,
}

var flagsToggleCmd = &cobra.Command{
	Use:   "toggle [flag-id]",
	Short: "Flip a flag",
	Args:  cobra.ExactArgs(1),
	RunE:  flagsToggle,
}

var (
	flagsSetDescription string
	flagsSetEnabled     bool
)

func init() {
	flagsSetCmd.Flags().StringVar(&flagsSetDescription, "description", "", "Flag description")
	flagsSetCmd.Flags().BoolVar(&flagsSetEnabled, "on", false, "Enable the flag")

	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsSetCmd)
	flagsCmd.AddCommand(flagsToggleCmd)
}

func flagsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	flags := a.engine.ListFlags()
	if len(flags) == 0 {
		fmt.Println("No flags.")
		return nil
	}
	for _, f := range flags {
		state := "off"
		if f.Enabled {
			state = "on"
		}
		fmt.Printf("%-38s  %-3s  %-24s  %s\n", f.ID, state, f.Name, f.Description)
	}
	return nil
}

func flagsSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := a.engine.PutFlag(args[0], flagsSetDescription, flagsSetEnabled)
	if err != nil {
		return err
	}
	fmt.Printf("Flag %s (%s) enabled=%v\n", f.Name, f.ID, f.Enabled)
	return nil
}

func flagsToggle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := a.engine.ToggleFlag(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Flag %s enabled=%v\n", f.Name, f.Enabled)
	return nil
}
