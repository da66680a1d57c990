package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/config"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/service"
	"github.com/sofragment/fragment/internal/store"
)

var timeNow = time.Now

// loadConfig decodes and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	if initErr != nil {
		return nil, initErr
	}
	return config.Load(viper.GetViper())
}

// openStore opens the credential store named by cfg. SQLite without a DSN
// uses fragment.db inside the data directory.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	dialect := store.Dialect(cfg.Database.Driver)
	dsn := cfg.Database.DSN
	if dialect == store.SQLite && dsn == "" {
		path, err := store.DefaultSQLitePath(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		dsn = path
	}
	st, err := store.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newPasswordHasher(cfg *config.Config) *secrets.PasswordHasher {
	return secrets.NewPasswordHasher(secrets.Argon2Params{
		Memory:      cfg.Auth.Argon2.Memory,
		Time:        cfg.Auth.Argon2.Time,
		Parallelism: cfg.Auth.Argon2.Parallelism,
	})
}

// operator bundles what the offline management commands need.
type operator struct {
	cfg   *config.Config
	store *store.Store
	users *service.UserService
	keys  *service.KeyService
}

// openOperator loads the config and opens the store. Key commands need the
// configured api_key_secret: a generated one would produce keys the server
// cannot validate.
func openOperator(ctx context.Context, withKeys bool) (*operator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if withKeys && cfg.Auth.APIKeySecret == "" {
		return nil, errors.New("auth.api_key_secret is not set; configure it (FRAGMENT_AUTH_API_KEY_SECRET) so the server can validate the keys")
	}
	if _, err := cfg.EnsureSecrets(); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	op := &operator{
		cfg:   cfg,
		store: st,
		users: service.NewUserService(st, newPasswordHasher(cfg), service.NewAuthService(cfg.Auth.JWTSecret)),
	}
	if withKeys {
		cipher, err := secrets.NewKeyCipher(cfg.Auth.APIKeySecret)
		if err != nil {
			st.Close()
			return nil, err
		}
		op.keys = service.NewKeyService(st, cipher)
	}
	return op, nil
}

func (o *operator) Close() error {
	return o.store.Close()
}

// userID resolves an account given by id or email.
func (o *operator) userID(ctx context.Context, ref string) (string, error) {
	if strings.Contains(ref, "@") {
		u, err := o.store.GetUserByEmail(ctx, service.NormalizeEmail(ref))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", fmt.Errorf("no user with email %q", ref)
			}
			return "", err
		}
		return u.ID, nil
	}
	u, err := o.users.GetUserByID(ctx, ref)
	if err != nil {
		return "", cliError(err)
	}
	return u.ID, nil
}

// cliError renders an API error as "Type: message" for terminal output.
func cliError(err error) error {
	if e, ok := apperr.As(err); ok {
		if e.Details != nil {
			return fmt.Errorf("%s: %s %v", e.Type, e.Message, e.Details)
		}
		return fmt.Errorf("%s: %s", e.Type, e.Message)
	}
	return err
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newCLILogger logs to stderr so stdout stays clean for command output.
func newCLILogger(cfg *config.Config, debug bool) *slog.Logger {
	return cfg.NewLogger(os.Stderr, debug)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
