package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sofragment/fragment/internal/codeshot"
	fmcp "github.com/sofragment/fragment/internal/mcp"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/server"
	"github.com/sofragment/fragment/internal/service"
	"github.com/sofragment/fragment/internal/telemetry"
)

const banner = `
  __                                      _
 / _|_ __ __ _  __ _ _ __ ___   ___ _ __ | |_
| |_| '__/ _' |/ _' | '_ ' _ \ / _ \ '_ \| __|
|  _| | | (_| | (_| | | | | | |  __/ | | | |_
|_| |_|  \__,_|\__, |_| |_| |_|\___|_| |_|\__|
               |___/
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		noUI bool
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fragment API server",
		Long:  "Start the HTTP server that exposes the account, API key and codeshot endpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noUI, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 3001, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Do not serve the embedded frontend")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable debug logging")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, noUI, dev bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(cfg, dev)

	generated, err := cfg.EnsureSecrets()
	if err != nil {
		return err
	}
	for _, key := range generated {
		logger.Warn("secret not configured, using a random value for this run", "key", key)
	}

	fmt.Print(banner)
	fmt.Println()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store opened", "driver", cfg.Database.Driver)

	cipher, err := secrets.NewKeyCipher(cfg.Auth.APIKeySecret)
	if err != nil {
		return fmt.Errorf("init key cipher: %w", err)
	}
	tokens := service.NewAuthService(cfg.Auth.JWTSecret)
	users := service.NewUserService(st, newPasswordHasher(cfg), tokens)
	keys := service.NewKeyService(st, cipher)

	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		metrics = telemetry.New()
	}

	renderer := codeshot.NewRenderer(codeshot.Config{
		PoolSize:          cfg.Codeshot.PoolSize,
		QueueDepth:        cfg.Codeshot.QueueDepth,
		RenderTimeout:     cfg.Codeshot.RenderTimeout,
		PerRequestBrowser: cfg.Codeshot.PerRequestBrowser,
		ChromePath:        cfg.Codeshot.ChromePath,
		NoSandbox:         cfg.Codeshot.NoSandbox,
	}, logger, codeshot.WithRecorder(metrics))
	defer renderer.Close()

	sampler := telemetry.NewSampler(metrics, func(ctx context.Context) (telemetry.Stats, error) {
		n, err := st.CountUsers(ctx)
		if err != nil {
			return telemetry.Stats{}, err
		}
		return telemetry.Stats{Users: n, DB: st.Stats()}, nil
	}, cfg.Metrics.SampleInterval, logger)
	sampler.Start()
	defer sampler.Shutdown()

	srvCfg := server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigin:      cfg.Server.CORSOrigin,
		Production:      cfg.Production(),
		MaxBodySize:     cfg.Server.MaxBodySize,
		RateLimitMax:    cfg.RateLimit.Max,
		RateLimitWindow: cfg.RateLimit.Window,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		EnableUI:        cfg.Server.EnableUI && !noUI,
		Version:         versionString(),
	}
	srv := server.New(srvCfg, server.Deps{
		Users:    users,
		Keys:     keys,
		Tokens:   tokens,
		Renderer: renderer,
		DB:       st,
		Metrics:  metrics,
		MCP:      fmcp.NewMCPServer(renderer, versionString(), logger).Handler(),
	}, logger)

	base := fmt.Sprintf("http://%s", srv.Addr())
	fmt.Printf("→ fragment %s (%s)\n", versionString(), cfg.Server.Environment)
	fmt.Printf("→ Listening on %s\n", base)
	fmt.Printf("→ OpenAPI:    %s/api/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/api/health\n", base)
	fmt.Printf("→ MCP:        %s/api/mcp\n", base)
	if metrics != nil {
		fmt.Printf("→ Metrics:    %s/metrics\n", base)
	}
	fmt.Println()

	return srv.ListenAndServe()
}
