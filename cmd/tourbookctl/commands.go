package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	domainauth "github.com/target/tourbook/internal/domain/auth"
	"github.com/target/tourbook/internal/gateway"
)

// errSignedOut is returned after the user was sent to the login screen.
var errSignedOut = errors.New("not signed in")

func commandSet(h *envHolder) []*cobra.Command {
	return []*cobra.Command{
		loginCmd(h),
		logoutCmd(h),
		whoamiCmd(h),
		getCmd(h),
		registerCmd(h),
	}
}

func loginCmd(h *envHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if h.flags.email == "" || h.flags.password == "" {
				return errors.New("--email and --password are required")
			}
			env, err := h.get(cmd.Context())
			if err != nil {
				return err
			}
			if err := env.store.SignInWithPassword(cmd.Context(), h.flags.email, h.flags.password); err != nil {
				return err
			}
			snap := env.settle(cmd.Context())
			if !snap.Authenticated() {
				return errors.New("sign-in did not complete")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", snap.Identity.Email)
			fmt.Fprintf(cmd.OutOrStdout(), "credential written to %s\n", env.creds.Path())
			return nil
		},
	}
}

func logoutCmd(h *envHolder) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := h.get(cmd.Context())
			if err != nil {
				return err
			}
			if err := env.store.SignOut(cmd.Context()); err != nil {
				return err
			}
			env.settle(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
}

func whoamiCmd(h *envHolder) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity and role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := h.get(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := env.ensureSignedIn(cmd.Context(), h.flags)
			if err != nil {
				return err
			}
			ok, err := env.require(cmd.Context(), snap, "", "whoami")
			if err != nil {
				return err
			}
			if !ok {
				return errSignedOut
			}
			role := env.Role(cmd.Context(), snap)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"identity": snap.Identity, "role": role})
			}
			fmt.Fprintf(out, "email: %s\n", snap.Identity.Email)
			if snap.Identity.DisplayName != "" {
				fmt.Fprintf(out, "name:  %s\n", snap.Identity.DisplayName)
			}
			fmt.Fprintf(out, "role:  %s\n", roleLabel(role))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func getCmd(h *envHolder) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET a backend path with the session's credential and print the JSON body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			env, err := h.get(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := env.ensureSignedIn(cmd.Context(), h.flags)
			if err != nil {
				return err
			}
			required := domainauth.Role("")
			if admin {
				required = domainauth.RoleAdmin
			}
			ok, err := env.require(cmd.Context(), snap, required, path)
			if err != nil {
				return err
			}
			if !ok {
				return errSignedOut
			}

			res := gateway.Get[json.RawMessage](cmd.Context(), env.gateway, path, nil)
			if res.Navigated() {
				// The gateway already told the user where to go.
				return res.Err()
			}
			body, ok := res.Value()
			if !ok {
				return res.Err()
			}
			return printJSON(cmd, body)
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "require the admin role before calling")
	return cmd
}

func registerCmd(h *envHolder) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if h.flags.email == "" || h.flags.password == "" {
				return errors.New("--email and --password are required")
			}
			env, err := h.get(cmd.Context())
			if err != nil {
				return err
			}
			if err := env.store.RegisterWithPassword(cmd.Context(), h.flags.email, h.flags.password); err != nil {
				return err
			}
			if name = strings.TrimSpace(name); name != "" {
				if err := env.store.UpdateProfile(cmd.Context(), domainauth.ProfileUpdate{DisplayName: &name}); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: display name not saved: %v\n", err)
				}
			}
			snap := env.settle(cmd.Context())
			if !snap.Authenticated() {
				return errors.New("registration did not sign in")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered and signed in as %s\n", snap.Identity.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func printJSON(cmd *cobra.Command, body json.RawMessage) error {
	if len(body) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "(no content)")
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func roleLabel(s domainauth.RoleState) string {
	if !s.Resolved {
		return "unknown"
	}
	return string(s.Role)
}
