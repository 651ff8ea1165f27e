package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/target/tourbook/internal/ports"
)

// Version information set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, closeSession := newRootCmd(rootOptions{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	err := root.ExecuteContext(ctx)
	closeSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command failure to the shell.
	}
}

// rootOptions carries the process streams and, in tests, a prebuilt identity provider.
type rootOptions struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	Provider ports.IdentityProvider
}

// newRootCmd builds the command tree. The returned func disposes the session opened by a command.
func newRootCmd(opts rootOptions) (*cobra.Command, func()) {
	flags := &globalFlags{}
	holder := &envHolder{opts: opts, flags: flags}

	root := &cobra.Command{
		Use:   "tourbookctl",
		Short: "Sign in to the tour booking site and call its backend",
		Long: `tourbookctl keeps one signed-in session per process.

Single commands sign in on demand with --email/--password (or TOURBOOK_EMAIL and
TOURBOOK_PASSWORD). "tourbookctl shell" keeps the session open across commands.
The current bearer credential is written to the credential file while signed in.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.credentialFile, "credential-file", "", "credential file (default <config dir>/tourbook/credential)")
	pf.StringVar(&flags.email, "email", os.Getenv("TOURBOOK_EMAIL"), "account email")
	pf.StringVar(&flags.password, "password", os.Getenv("TOURBOOK_PASSWORD"), "account password")
	pf.BoolVar(&flags.verbose, "verbose", false, "log at debug level to stderr")

	root.AddCommand(commandSet(holder)...)
	root.AddCommand(shellCmd(holder))
	return root, holder.close
}
