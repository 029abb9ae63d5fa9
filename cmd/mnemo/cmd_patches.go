package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mnemo/internal/types"
)

var patchesCmd = &cobra.Command{
	Use:   "patches",
	Short: "Review code patches proposed by the assistant",
	Long: `The assistant records proposed code changes as patch proposals.
Nothing ever applies a patch automatically: review the diff here, then
approve or reject it. Every decision is written to the audit log.`,
}

var patchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List patch proposals",
	RunE:  patchesList,
}

var patchesShowCmd = &cobra.Command{
	Use:   "show [patch-id]",
	Short: "Print a proposal's full diff",
	Args:  cobra.ExactArgs(1),
	RunE:  patchesShow,
}

var patchesApproveCmd = &cobra.Command{
	Use:   "approve [patch-id]",
	Short: "Approve a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPatchStatus(args[0], types.PatchApproved)
	},
}

var patchesRejectCmd = &cobra.Command{
	Use:   "reject [patch-id]",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPatchStatus(args[0], types.PatchRejected)
	},
}

var patchesAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the patch decision history",
	RunE:  patchesAudit,
}

func init() {
	patchesCmd.AddCommand(patchesListCmd)
	patchesCmd.AddCommand(patchesShowCmd)
	patchesCmd.AddCommand(patchesApproveCmd)
	patchesCmd.AddCommand(patchesRejectCmd)
	patchesCmd.AddCommand(patchesAuditCmd)
}

func patchesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	patches := a.engine.ListPatches()
	if len(patches) == 0 {
		fmt.Println("No patch proposals.")
		return nil
	}
	for _, p := range patches {
		fmt.Printf("%-38s  %-9s  %s\n", p.ID, p.Status, truncate(p.Title, 50))
	}
	return nil
}

func patchesShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.engine.GetPatch(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Title:  %s\n", p.Title)
	fmt.Printf("Status: %s\n", p.Status)
	if p.Model != "" {
		fmt.Printf("Model:  %s\n", p.Model)
	}
	if p.Description != "" {
		fmt.Printf("\n%s\n", p.Description)
	}
	if p.TestNotes != "" {
		fmt.Printf("\nTest notes: %s\n", p.TestNotes)
	}
	fmt.Printf("\n%s\n", p.Diff)
	return nil
}

func setPatchStatus(id string, status types.PatchStatus) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	p, err := a.engine.SetPatchStatus(id, status)
	if err != nil {
		return err
	}
	fmt.Printf("Patch %s is now %s\n", p.ID, p.Status)
	return nil
}

func patchesAudit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.store.AuditLog()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No decisions recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-9s  %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Status, e.PatchID)
	}
	return nil
}
