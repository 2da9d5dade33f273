package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/calderw/bastion/api"
	"github.com/calderw/bastion/pake"
	bboltstore "github.com/calderw/bastion/store/bbolt"
)

var (
	addr           string
	dataDir        string
	rateWindow     time.Duration
	rateMax        int
	pendingTTL     time.Duration
	trustedProxies []string
	debugExport    bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authentication server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		st, err := bboltstore.NewFromFile(dataDir+"/credentials.db", nil)
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		defer st.Close()

		serverKey, err := pake.LoadOrCreateServerKey(dataDir)
		if err != nil {
			return fmt.Errorf("failed to load server key: %w", err)
		}

		prefixes, err := parseTrustedProxies(trustedProxies)
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		opts := []api.Option{
			api.WithLogger(logger),
			api.WithRateLimit(rateWindow, rateMax),
			api.WithPendingTTL(pendingTTL),
			api.WithTrustedProxies(prefixes),
		}
		if debugExport {
			logger.Warn("debug export route enabled; do not run this in production")
			opts = append(opts, api.WithDebugExport())
		}
		a := api.New(st, pake.NewServer(serverKey), opts...)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", a.Router())

		server := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "addr", addr, "data_dir", dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func parseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().DurationVar(&rateWindow, "rate-window", time.Minute, "Rate limit window per (IP, route)")
	serverCmd.Flags().IntVar(&rateMax, "rate-max", 10, "Max attempts per (IP, route) within the window")
	serverCmd.Flags().DurationVar(&pendingTTL, "pending-ttl", 60*time.Second, "How long an unfinished login handshake stays redeemable")
	serverCmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxies", nil, "CIDR ranges whose proxy headers are honored for client IPs")
	serverCmd.Flags().BoolVar(&debugExport, "debug-export", false, "Mount the credential export route (breach drills only)")
}
