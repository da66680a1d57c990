package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sofragment/fragment/internal/model"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long: `Create, list, revoke and reveal API keys used to call the codeshot tool.

These commands need the same auth.api_key_secret as the server, since keys
are indexed by a keyed hash and stored encrypted.`,
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyRevealCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		user  string
		name  string
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key for a user",
		Long:  "Generate a new API key owned by a user. Keys expire after one year.",
		Example: `  fragment key create --user alice@example.com --name "CI pipeline"
  fragment key create --user alice@example.com --name bootstrap --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.Context(), cmd.OutOrStdout(), user, name, admin)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Owner, by id or email (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().BoolVar(&admin, "admin", false, "Issue a frgmt-admin- key")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(ctx context.Context, out io.Writer, userRef, name string, admin bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, true)
	if err != nil {
		return err
	}
	defer op.Close()

	ownerID, err := op.userID(ctx, userRef)
	if err != nil {
		return err
	}
	key, err := op.keys.GenerateAPIKey(ctx, ownerID, name, admin)
	if err != nil {
		return cliError(err)
	}

	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:     %s\n", key.Key)
	fmt.Fprintf(out, "  ID:      %s\n", key.ID)
	fmt.Fprintf(out, "  Name:    %s\n", key.Name)
	if key.ExpiresAt != nil {
		fmt.Fprintf(out, "  Expires: %s\n", key.ExpiresAt.Format("2006-01-02"))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - the API will only show its prefix.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		user       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys, including revoked and expired ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.Context(), cmd.OutOrStdout(), user, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Only keys of this user, by id or email")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(ctx context.Context, out io.Writer, userRef string, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, true)
	if err != nil {
		return err
	}
	defer op.Close()

	var ownerID string
	if userRef != "" {
		if ownerID, err = op.userID(ctx, userRef); err != nil {
			return err
		}
	}
	keys, err := op.keys.ListAllAPIKeys(ctx, ownerID)
	if err != nil {
		return cliError(err)
	}

	if jsonOutput {
		if keys == nil {
			keys = []model.APIKey{}
		}
		return printJSON(out, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(out, "No API keys. Use 'fragment key create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-20s %-24s %-8s\n", "ID", "PREFIX", "NAME", "STATUS")
	fmt.Fprintf(out, "%-36s %-20s %-24s %-8s\n", "--", "------", "----", "------")
	for _, k := range keys {
		fmt.Fprintf(out, "%-36s %-20s %-24s %-8s\n", k.ID, k.KeyPrefix, k.Name, keyStatus(&k))
	}
	return nil
}

func keyStatus(k *model.APIKey) string {
	switch {
	case k.IsRevoked:
		return "revoked"
	case k.Expired(timeNow()):
		return "expired"
	default:
		return "active"
	}
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(ctx context.Context, out io.Writer, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, true)
	if err != nil {
		return err
	}
	defer op.Close()

	key, err := op.store.GetAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("API key %s: %w", id, err)
	}
	if err := op.keys.RevokeAPIKey(ctx, key.ID, key.UserID); err != nil {
		return cliError(err)
	}

	fmt.Fprintf(out, "Revoked API key %s (%s)\n", key.ID, key.KeyPrefix)
	return nil
}

// ---------- key reveal ----------

func newKeyRevealCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reveal <id>",
		Short: "Decrypt and print a stored API key",
		Long:  "Print the full value of a stored API key. This is only possible with the server's api_key_secret.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyReveal(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyReveal(ctx context.Context, out io.Writer, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	op, err := openOperator(ctx, true)
	if err != nil {
		return err
	}
	defer op.Close()

	raw, err := op.keys.RevealAPIKey(ctx, id)
	if err != nil {
		return cliError(err)
	}
	fmt.Fprintln(out, raw)
	return nil
}
