package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/validate"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user",
		Aliases: []string{"users"},
		Short:   "Manage user accounts",
		Long:    "Create, list and promote user accounts directly against the store, without going through the API.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserRoleCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user account",
		Example: `  fragment user create --username alice --email alice@example.com --admin
  fragment user create --username bob --email bob@example.com --password 's3cret-pass'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				password = pw
			}
			role := model.RoleUser
			if admin {
				role = model.RoleAdmin
			}
			return runUserCreate(cmd.Context(), cmd.OutOrStdout(), username, email, password, role)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username, 3-30 letters, digits, underscores or hyphens (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Create the account with the ADMIN role")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("email")

	return cmd
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(w, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(w, "Confirm password: ")
	confirm, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	if string(pw) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pw), nil
}

// newAccount carries the same rules as API registration.
type newAccount struct {
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,password"`
}

var newAccountMessages = validate.Messages{
	"username":          "username must be between 3 and 30 characters",
	"username:username": "username can only contain letters, numbers, underscores, and hyphens",
	"password":          "password must be at least 8 characters long",
	"password:password": "password must contain at least one letter and one number",
}

func runUserCreate(ctx context.Context, out io.Writer, username, email, password string, role model.Role) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate.Struct(newAccount{username, email, password}, newAccountMessages); err != nil {
		return cliError(err)
	}
	op, err := openOperator(ctx, false)
	if err != nil {
		return err
	}
	defer op.Close()

	resp, err := op.users.CreateUserWithRole(ctx, username, email, password, role)
	if err != nil {
		return cliError(err)
	}

	fmt.Fprintf(out, "Created user %q\n", resp.User.Username)
	fmt.Fprintf(out, "  ID:    %s\n", resp.User.ID)
	fmt.Fprintf(out, "  Email: %s\n", resp.User.Email)
	fmt.Fprintf(out, "  Role:  %s\n", resp.User.Role)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(ctx context.Context, out io.Writer, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, false)
	if err != nil {
		return err
	}
	defer op.Close()

	users, err := op.users.ListUsers(ctx)
	if err != nil {
		return cliError(err)
	}

	if jsonOutput {
		if users == nil {
			users = []model.User{}
		}
		return printJSON(out, users)
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users yet. Use 'fragment user create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-20s %-30s %-6s\n", "ID", "USERNAME", "EMAIL", "ROLE")
	fmt.Fprintf(out, "%-36s %-20s %-30s %-6s\n", "--", "--------", "-----", "----")
	for _, u := range users {
		fmt.Fprintf(out, "%-36s %-20s %-30s %-6s\n", u.ID, u.Username, u.Email, u.Role)
	}
	return nil
}

// ---------- user promote / demote ----------

func newUserRoleCmd() *cobra.Command {
	var demote bool

	cmd := &cobra.Command{
		Use:   "promote <id|email>",
		Short: "Grant (or with --demote, remove) the ADMIN role",
		Example: `  fragment user promote alice@example.com
  fragment user promote alice@example.com --demote`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := model.RoleAdmin
			if demote {
				role = model.RoleUser
			}
			return runUserRole(cmd.Context(), cmd.OutOrStdout(), args[0], role)
		},
	}

	cmd.Flags().BoolVar(&demote, "demote", false, "Set the role back to USER")

	return cmd
}

func runUserRole(ctx context.Context, out io.Writer, ref string, role model.Role) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, false)
	if err != nil {
		return err
	}
	defer op.Close()

	id, err := op.userID(ctx, ref)
	if err != nil {
		return err
	}
	if err := op.users.SetRole(ctx, id, role); err != nil {
		return cliError(err)
	}

	fmt.Fprintf(out, "User %s now has role %s\n", ref, role)
	return nil
}
