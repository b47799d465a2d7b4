package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BigJazzz/mosaic/internal/remote"
)

// readPassword returns flagValue, or the first line of r when the flag was
// not given.
func readPassword(flagValue string, r io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("a password is required (--password or stdin)")
	}
	return line, nil
}

// withDevice opens the device stack, runs fn, and closes it.
func withDevice(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, d *device, f *OutputFormatter) error) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()

	d, err := openDevice(ctx, opts)
	if err != nil {
		return formatter.failCommand("open device", err)
	}
	defer d.Close()

	return fn(ctx, d, formatter)
}

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Username string
	Password string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the attendance server",
		Long: `Sign in and keep the session token on this device.

Without --password the password is read from the first line of stdin.
Signing in again after a rejected session resumes sync.

Example:
  mosaic login -u desk < password.txt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				return runLogin(ctx, opts, d, f, cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "username (required)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "password (default: read from stdin)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func runLogin(ctx context.Context, opts *LoginOptions, d *device, f *OutputFormatter, stdin io.Reader) error {
	password, err := readPassword(opts.Password, stdin)
	if err != nil {
		return f.fail("login", err)
	}

	resp, err := d.api.Login(ctx, opts.Username, password)
	if err != nil {
		return f.fail("login", err)
	}
	if err := d.session.SaveLogin(ctx, resp.User.Username, resp.Token); err != nil {
		return f.failCommand("save session", err)
	}

	if f.Format == "json" {
		return f.Success(resp.User)
	}
	fmt.Fprintf(f.Writer, "Logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
	return nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logout",
		Short:         "Forget the session token (queued check-ins are kept)",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if err := d.session.Logout(ctx); err != nil {
					return f.failCommand("logout", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]bool{"logged_out": true})
				}
				fmt.Fprintln(f.Writer, "Logged out")
				return nil
			})
		},
	}

	return cmd
}

// NewPasswdCommand creates the passwd command.
func NewPasswdCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:           "passwd",
		Short:         "Change your password",
		Long:          "Change the signed-in user's password. Without --password it is read from stdin.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				pw, err := readPassword(password, cmd.InOrStdin())
				if err != nil {
					return f.fail("change password", err)
				}
				if err := d.api.ChangePassword(ctx, pw); err != nil {
					return f.fail("change password", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]bool{"changed": true})
				}
				fmt.Fprintln(f.Writer, "Password changed")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (default: read from stdin)")

	return cmd
}

// NewUsersCommand creates the users command group. Admin only.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts (admin)",
	}

	cmd.AddCommand(newUsersListCommand(rootOpts))
	cmd.AddCommand(newUsersAddCommand(rootOpts))
	cmd.AddCommand(newUsersRemoveCommand(rootOpts))

	return cmd
}

func newUsersListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				users, err := d.api.ListUsers(ctx)
				if err != nil {
					return f.fail("list users", err)
				}
				if f.Format == "json" {
					return f.Success(users)
				}
				writeUsers(f.Writer, users)
				return nil
			})
		},
	}
}

func writeUsers(w io.Writer, users []remote.User) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tPLANS")
	for _, u := range users {
		plans := "all"
		if len(u.Plans) > 0 {
			plans = strings.Join(u.Plans, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Username, u.Role, plans)
	}
	tw.Flush()
}

func newUsersAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		password string
		role     string
		plans    []string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account",
		Long: `Create an account. Without --password it is read from stdin.

Example:
  mosaic users add desk --role User --plans SP1,SP2 -p s3cret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				pw, err := readPassword(password, cmd.InOrStdin())
				if err != nil {
					return f.fail("create user", err)
				}
				req := remote.CreateUserRequest{Username: args[0], Password: pw, Role: role, Plans: plans}
				if err := d.api.CreateUser(ctx, req); err != nil {
					return f.fail("create user", err)
				}
				if f.Format == "json" {
					return f.Success(remote.User{Username: req.Username, Role: req.Role, Plans: req.Plans})
				}
				fmt.Fprintf(f.Writer, "Created user %s (%s)\n", req.Username, req.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: read from stdin)")
	cmd.Flags().StringVar(&role, "role", "User", "role (Admin|User)")
	cmd.Flags().StringSliceVar(&plans, "plans", nil, "plans the user may access (default: all)")

	return cmd
}

func newUsersRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <username>",
		Short:         "Delete an account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(rootOpts, cmd, func(ctx context.Context, d *device, f *OutputFormatter) error {
				if err := d.api.DeleteUser(ctx, args[0]); err != nil {
					return f.fail("delete user", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(f.Writer, "Deleted user %s\n", args[0])
				return nil
			})
		},
	}
}
