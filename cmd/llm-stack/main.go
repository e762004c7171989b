// Command llm-stack runs the OpenAI-compatible API server.
//
//	llm-stack serve [--host HOST] [--port PORT] [--workers N]
//	                [--reload] [--reload-delay DUR]
//	                [--log-level LEVEL] [--use-colors]
//
// Settings come from the environment (with optional .env); flags override.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/gnuflag"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dockhardman/General-LLM-Stack/internal/config"
	"github.com/dockhardman/General-LLM-Stack/internal/domain"
	"github.com/dockhardman/General-LLM-Stack/internal/llm"
	"github.com/dockhardman/General-LLM-Stack/internal/logging"
	"github.com/dockhardman/General-LLM-Stack/internal/registry"
	"github.com/dockhardman/General-LLM-Stack/internal/reload"
	"github.com/dockhardman/General-LLM-Stack/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "llm-stack:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "serve":
		return serve(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: llm-stack serve [options]

options:
  --host HOST          bind address (default 0.0.0.0)
  --port PORT          bind port (default 8680)
  --workers N          concurrently served requests (default 1)
  --reload             restart on source changes (development)
  --reload-delay DUR   debounce before restart (default 5s)
  --log-level LEVEL    debug, info, warn, or error (default debug)
  --use-colors         colorized text logs instead of JSON (default on)`)
}

func serve(args []string) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}

	flags := gnuflag.NewFlagSet("serve", gnuflag.ContinueOnError)
	flags.StringVar(&settings.Host, "host", settings.Host, "bind address")
	flags.IntVar(&settings.Port, "port", settings.Port, "bind port")
	flags.IntVar(&settings.Workers, "workers", settings.Workers, "concurrently served requests")
	flags.BoolVar(&settings.Reload, "reload", settings.Reload, "restart on source changes")
	flags.DurationVar(&settings.ReloadDelay, "reload-delay", settings.ReloadDelay, "debounce before restart")
	flags.StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "log level")
	flags.BoolVar(&settings.UseColors, "use-colors", settings.UseColors, "colorized text logs")
	if err := flags.Parse(true, args); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logger := logging.Setup(os.Stderr, settings.LogLevel, settings.UseColors)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.Reload {
		return supervise(ctx, settings, logger, args)
	}
	return runServer(ctx, settings, logger)
}

// supervise respawns this binary (without --reload) when sources change.
func supervise(ctx context.Context, settings *config.Settings, logger *slog.Logger, args []string) error {
	command := []string{os.Args[0], "serve"}
	for _, arg := range args {
		if arg == "--reload" || arg == "-reload" || arg == "--reload=true" {
			continue
		}
		command = append(command, arg)
	}
	command = append(command, "--reload=false")

	sup, err := reload.NewSupervisor(command, ".", settings.ReloadDelay, logger)
	if err != nil {
		return err
	}
	return sup.Run(ctx)
}

func runServer(ctx context.Context, settings *config.Settings, logger *slog.Logger) error {
	var (
		client llm.Client
		store  registry.Store
		err    error
	)

	if settings.AppType == config.AppTypeLLM {
		client, err = llm.NewClient(settings.ClientConfig())
		if err != nil {
			return fmt.Errorf("build provider client: %w", err)
		}
		defer client.Close()
	} else {
		store, err = openRegistryStore(settings)
		if err != nil {
			return err
		}
	}

	srv, err := server.New(settings, client, store, logger)
	if err != nil {
		return err
	}

	// An llm instance pointed at an agent heartbeats its deploys.
	if settings.AppType == config.AppTypeLLM && settings.AgentURL != "" && len(settings.Deploys) > 0 {
		registrar, err := newRegistrar(settings, logger)
		if err != nil {
			return err
		}
		go registrar.Run(ctx)
	}

	return srv.Run(ctx)
}

func openRegistryStore(settings *config.Settings) (registry.Store, error) {
	if settings.PostgresDSN == "" {
		return registry.NewMemoryStore(), nil
	}
	db, err := gorm.Open(postgres.Open(settings.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	return registry.NewGormStore(db)
}

func newRegistrar(settings *config.Settings, logger *slog.Logger) (*registry.Registrar, error) {
	cfg := registry.RegistrarConfig{
		AgentURL:   settings.AgentURL,
		SelfURL:    settings.AdvertisedURL(),
		Period:     settings.RegisterPeriod,
		FailPeriod: settings.RegisterFailPeriod,
	}
	for name, route := range settings.Deploys {
		cfg.Deploys = append(cfg.Deploys, domain.ModelDeploy{
			DeployName: name,
			ModelName:  route.Model,
		})
	}
	return registry.NewRegistrar(cfg, nil, logger)
}
