// pinphotos serves the photo cache of geographic pins over HTTP
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"bitbucket.org/kleinnic74/pinphotos/config"
	"bitbucket.org/kleinnic74/pinphotos/consts"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

const memoryLogLines = 1000

var (
	libDir  string
	port    uint
	envFile string
	devMode bool
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&libDir, "l", "", "Path to the library directory")
	flag.UintVar(&port, "p", 0, "HTTP port to listen on")
	flag.StringVar(&envFile, "env", ".env", "File with PINPHOTOS_ settings")
	flag.BoolVar(&devMode, "dev", false, "Enable development mode")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "l":
			cfg.LibDir = libDir
		case "p":
			cfg.Port = port
		case "dev":
			cfg.DevMode = devMode
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.LibDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot create library directory %s: %s\n", cfg.LibDir, err)
		os.Exit(1)
	}

	consts.SetDevMode(cfg.DevMode)
	err = logging.Init(logging.Options{
		DevMode:     cfg.DevMode,
		LogFile:     filepath.Join(cfg.LibDir, "pinphotos.log"),
		MemoryLines: memoryLogLines,
		Console:     os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %s\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, ctx := logging.SubFrom(ctx, "main")
	a, err := app.NewApp(ctx, *cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close(context.WithoutCancel(ctx))

	if err := a.Run(ctx); err != nil {
		logger.Error("Server failed", zap.Error(err))
		a.Close(context.WithoutCancel(ctx))
		logging.Sync()
		os.Exit(1)
	}
}
