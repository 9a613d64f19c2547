package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/emrgen/notesync/internal/config"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Server represents the server
type Server struct {
	cfg *config.Config
}

// NewServer creates a new server
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Start starts the server and blocks until it is interrupted
func (s *Server) Start() {
	if err := Start(s.cfg); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// Start serves the http api and runs the background jobs until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logrus.Errorf("error closing app: %v", err)
		}
	}()

	rl, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}

	handler := NewHandler(app.Notes, app.Reader, app.Attachments, app.Toolkit, app.Signer, app.MaxUpload())
	routes, err := handler.Routes()
	if err != nil {
		return err
	}

	apiMux := http.NewServeMux()
	apiMux.Handle("/", routes)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", callerHeader},
		AllowCredentials: true,
	})

	restServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(apiMux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	executor := app.Executor()
	if err := executor.Run(); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	defer executor.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting http server on: ", cfg.Addr())
		if err := restServer.Serve(rl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("error serving http: %v", err)
		}
		logrus.Infof("http server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := restServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping http server: %v", err)
	}

	wg.Wait()

	return nil
}
