package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func shellCmd(h *envHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands against one session until EOF or \"exit\"",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := h.get(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "tourbook> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				args := strings.Fields(scanner.Text())
				if len(args) == 0 {
					continue
				}
				if args[0] == "exit" || args[0] == "quit" {
					return nil
				}
				if err := runLine(cmd, h, args); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				}
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
			}
		},
	}
}

// runLine executes one shell line on a fresh command tree bound to the shared session.
// Flags given on the line apply to that line only.
func runLine(parent *cobra.Command, h *envHolder, args []string) error {
	saved := *h.flags
	defer func() { *h.flags = saved }()

	line := &cobra.Command{
		Use:           "tourbook>",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := line.PersistentFlags()
	pf.StringVar(&h.flags.email, "email", saved.email, "account email")
	pf.StringVar(&h.flags.password, "password", saved.password, "account password")
	line.AddCommand(commandSet(h)...)
	line.SetIn(parent.InOrStdin())
	line.SetOut(parent.OutOrStdout())
	line.SetErr(parent.ErrOrStderr())
	line.SetArgs(args)
	return line.ExecuteContext(parent.Context())
}
