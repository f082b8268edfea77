package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anarchy.ttfm/paytr/cmd/paytr/internal/auth"
	"anarchy.ttfm/paytr/cmd/paytr/internal/router"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func loadConfig(path string) (cfg Config, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	err = yaml.Unmarshal(contents, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// secret prefers the environment over the config file
func secret(c *cli.Command, cfg *Config) (s []byte, err error) {
	value := c.String("jwt-secret")
	if value == "" {
		value = cfg.JwtSecret
	}
	if value == "" {
		return nil, errors.New("jwt secret is required")
	}
	return []byte(value), nil
}

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "YAML configuration",
	Value:   "config.yaml",
	Sources: cli.EnvVars("PAYTR_CONFIG"),
}

var secretFlag = &cli.StringFlag{
	Name:    "jwt-secret",
	Usage:   "HS256 secret of caller tokens, overrides the config file",
	Sources: cli.EnvVars("PAYTR_JWT_SECRET"),
}

var serve = &cli.Command{
	Name:  "serve",
	Usage: "Serve the HTTP API and pay out due invoices in the background",
	Flags: []cli.Flag{
		configFlag,
		secretFlag,
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "set debug mode",
		},
		&cli.StringFlag{
			Name:    "listen",
			Usage:   "Listen address, overrides the config file",
			Sources: cli.EnvVars("PAYTR_LISTEN"),
		},
	},
	Action: func(ctx context.Context, c *cli.Command) (err error) {
		if c.Bool("debug") {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}

		cfg, err := loadConfig(c.String("config"))
		if err != nil {
			return err
		}
		key, err := secret(c, &cfg)
		if err != nil {
			return err
		}
		listen := c.String("listen")
		if listen == "" {
			listen = cfg.ListenAddress
		}

		ctrl, config, err := cfg.Compile()
		if err != nil {
			return err
		}
		defer config.DB.Close()

		e := gin.Default()
		var r = router.Router{
			ProcessInterval: cfg.ProcessInterval,
			Controller:      ctrl,
			Auth:            auth.New(key),
			Base:            e,
		}
		r.Register(ctx)

		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		handler := cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler(e)

		srv := &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       time.Minute,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		log.Println("[*] Listening on", listen, "account", ctrl.Account())
		err = srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}

var token = &cli.Command{
	Name:  "token",
	Usage: "Issue a caller token for an address",
	Flags: []cli.Flag{
		configFlag,
		secretFlag,
		&cli.StringFlag{
			Name:     "address",
			Usage:    "Caller address",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "ttl",
			Usage: "Token lifetime",
			Value: 24 * time.Hour,
		},
	},
	Action: func(ctx context.Context, c *cli.Command) (err error) {
		var cfg Config
		if c.String("jwt-secret") == "" {
			cfg, err = loadConfig(c.String("config"))
			if err != nil {
				return err
			}
		}
		key, err := secret(c, &cfg)
		if err != nil {
			return err
		}

		signed, err := auth.New(key).Issue(c.String("address"), c.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Println(signed)
		return nil
	},
}

var app = cli.Command{
	Name:     "paytr",
	Usage:    "Escrow invoices in yield vaults and pay them out when due",
	Commands: []*cli.Command{serve, token},
}

func main() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = app.Run(ctx, os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
