package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/radiowave-backend/internal/domain/shell"
	"github.com/edumarques81/radiowave-backend/internal/version"
)

var shellDir string

var genIconsCmd = &cobra.Command{
	Use:   "gen-icons",
	Short: "Render the install icons into <dir>/icons",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := shell.GenerateIcons(shellDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", p)
		}
		return nil
	},
}

var checkPWACmd = &cobra.Command{
	Use:   "check-pwa",
	Short: "Check that the shell in <dir> can be installed as an app",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := shell.CheckInstallable(shellDir)
		printReport(cmd, report)
		if !report.OK() {
			return errors.New("shell is not installable")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
	},
}

func printReport(cmd *cobra.Command, r shell.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Installability of %s\n", r.Dir)
	for _, c := range r.Checks {
		mark := "ok  "
		if !c.OK {
			mark = "FAIL"
		}
		if c.Detail != "" {
			fmt.Fprintf(out, "  [%s] %s: %s\n", mark, c.Name, c.Detail)
		} else {
			fmt.Fprintf(out, "  [%s] %s\n", mark, c.Name)
		}
	}
	fmt.Fprintln(out, "Note: browsers only offer installation over HTTPS or on localhost.")
}

func init() {
	for _, cmd := range []*cobra.Command{genIconsCmd, checkPWACmd} {
		cmd.Flags().StringVarP(&shellDir, "dir", "d", "public", "shell directory")
	}
	rootCmd.AddCommand(genIconsCmd, checkPWACmd, versionCmd)
}
