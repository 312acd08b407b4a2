/*
Copyright (C) 2026 QLC+ Show Creator Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/varghele/QLCplusShowCreator/internal/artnet"
	"github.com/varghele/QLCplusShowCreator/internal/config"
	"github.com/varghele/QLCplusShowCreator/internal/db"
	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/logbuffer"
	"github.com/varghele/QLCplusShowCreator/internal/logging"
	"github.com/varghele/QLCplusShowCreator/internal/playback"
	"github.com/varghele/QLCplusShowCreator/internal/server"
	"github.com/varghele/QLCplusShowCreator/internal/show"
	"github.com/varghele/QLCplusShowCreator/internal/workspace"
)

const version = "0.3.0"

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "showcreator",
	Short: "QLC+ Show Creator - timeline compositor for lighting shows",
	Long:  "QLC+ Show Creator turns timeline workspaces into live Art-Net output and exported QLC+ show files.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	Long:  "Start the HTTP API with playback control, compilation, export and the websocket monitor feed",
	RunE:  runServe,
}

var playCmd = &cobra.Command{
	Use:   "play <show>",
	Short: "Play a show live over Art-Net",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var exportCmd = &cobra.Command{
	Use:   "export <show>",
	Short: "Compile a show and write a QLC+ workspace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var compileCmd = &cobra.Command{
	Use:   "compile <show>",
	Short: "Compile a show and print the step summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var exportOutput string

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default <show>.qxw)")
	rootCmd.AddCommand(serveCmd, playCmd, exportCmd, compileCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = logging.Setup(cfg.Environment)
	return nil
}

// loadConfigWithCapture is loadConfig plus a log ring buffer, used by
// the server so /api/v1/logs can serve recent entries.
func loadConfigWithCapture() (*logbuffer.Buffer, error) {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	capture := logbuffer.New(0)
	logger = logging.SetupWithWriter(cfg.Environment, capture)
	return capture, nil
}

// buildService loads the workspace and fixture library and assembles
// the runtime. withOutput selects whether an Art-Net socket is opened.
func buildService(withOutput bool, database *gorm.DB) (*show.Service, *events.Bus, error) {
	doc, err := workspace.Load(cfg.WorkspacePath)
	if err != nil {
		return nil, nil, err
	}

	library, err := fixture.LoadLibrary(cfg.FixtureLibrary)
	if err != nil {
		return nil, nil, err
	}

	var transport playback.Transport
	if withOutput {
		target, port := cfg.ArtNetTarget, cfg.ArtNetPort
		if doc.ArtNet.Target != "" {
			target = doc.ArtNet.Target
		}
		if doc.ArtNet.Port != 0 {
			port = doc.ArtNet.Port
		}
		sender, err := artnet.NewSender(logger, target, port)
		if err != nil {
			return nil, nil, err
		}
		transport = sender
	}

	bus := events.NewBus()
	svc := show.NewService(logger, bus, doc, library, transport, float64(cfg.TickRateHz), database)
	return svc, bus, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	capture, err := loadConfigWithCapture()
	if err != nil {
		return err
	}
	logger.Info().Str("version", version).Msg("show creator starting")

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(database) }()
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	svc, bus, err := buildService(true, database)
	if err != nil {
		return err
	}

	srv := server.New(logger, svc, bus, capture)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	svc.Engine().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc, bus, err := buildService(true, nil)
	if err != nil {
		return err
	}

	name := args[0]
	if err := svc.LoadShow(name); err != nil {
		return err
	}

	positions := bus.Subscribe(events.EventPositionChanged)
	stopped := bus.Subscribe(events.EventPlaybackStopped)

	svc.Engine().Play()
	logger.Info().Str("show", name).Msg("playing, ctrl-c to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			svc.Engine().Stop()
			return nil
		case <-stopped:
			return nil
		case p := <-positions:
			if pos, ok := p["position"].(float64); ok {
				fmt.Printf("\rposition: %7.2fs", pos)
			}
		}
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc, _, err := buildService(false, nil)
	if err != nil {
		return err
	}

	name := args[0]
	out := exportOutput
	if out == "" {
		out = name + ".qxw"
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()

	if err := svc.ExportShow(name, f); err != nil {
		return err
	}
	logger.Info().Str("show", name).Str("file", out).Msg("exported")
	return nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc, _, err := buildService(false, nil)
	if err != nil {
		return err
	}

	tracks, err := svc.CompileShow(args[0])
	if err != nil {
		return err
	}
	for _, t := range tracks {
		for _, seq := range t.Sequences {
			fmt.Printf("%-20s %-24s %4d steps  %8s\n",
				t.Lane, seq.Name, len(seq.Description.Steps), seq.Description.Duration().Round(time.Millisecond))
		}
	}
	return nil
}
