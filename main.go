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

	"github.com/spf13/cobra"

	"social_post_relay/blacklist"
	"social_post_relay/config"
	"social_post_relay/fetcher"
	"social_post_relay/generator"
	"social_post_relay/publisher"
	"social_post_relay/server"
)

var (
	version = "dev"

	verbose bool
	envFile string
	addr    string
)

var rootCmd = &cobra.Command{
	Use:           "social-post-relay",
	Short:         "Turn a prompt or a web page into a social post and publish it to WordPress",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("social-post-relay %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file applied before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info logs")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")

	rootCmd.AddCommand(serveCmd, publishCmd, blacklistCmd, versionCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.Default()

	store, err := blacklist.Open(cfg.Blacklist.Backend, cfg.Blacklist.Path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	f := fetcher.New(store, fetcher.Options{
		DownloadsDir: cfg.Fetch.DownloadsDir,
		Mode:         cfg.Fetch.Mode,
		BrowserTLS:   cfg.Fetch.BrowserTLS,
		AllowPrivate: cfg.Fetch.AllowPrivate,
		Logger:       logger,
	})
	llm, err := buildLLM(cfg)
	if err != nil {
		return err
	}
	agent, err := generator.NewAgent(llm, f, cfg.LLM.Model, logger)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Deps{
		Generator:  agent,
		Publisher:  newPublisher(cfg),
		Blacklist:  store,
		MetaImages: f,
		BackendURL: cfg.LLM.BaseURL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if addr != "" {
		listen = addr
	}
	httpSrv := &http.Server{
		Addr:              listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[cli] starting web server on %s provider=%s model=%s blacklist=%s(%s)",
			listen, cfg.LLM.Provider, cfg.LLM.Model, cfg.Blacklist.Backend, cfg.Blacklist.Path)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Printf("[cli] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newPublisher(cfg config.Config) *publisher.Publisher {
	return publisher.New(publisher.Config{
		URL:         cfg.WordPress.URL,
		Username:    cfg.WordPress.Username,
		AppPassword: cfg.WordPress.AppPassword,
	}, nil, verbose, log.Default())
}

func buildLLM(cfg config.Config) (generator.LLMClient, error) {
	return generator.NewLLM(generator.LLMSettings{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
}
