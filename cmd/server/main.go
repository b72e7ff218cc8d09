// Package main is the entry point for the drum2midi API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/james-see/drum2midi/pkg/api"
)

func main() {
	cfg := api.ConfigFromEnv()
	flag.StringVar(&cfg.Host, "host", cfg.Host, "Listen address ($HOST)")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Server port ($PORT)")
	flag.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Job directory ($WORK_DIR)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent jobs ($WORKERS)")
	flag.Int64Var(&cfg.MaxFileSize, "max-file-size", cfg.MaxFileSize, "Upload limit in bytes ($MAX_FILE_SIZE)")
	origins := flag.String("cors-origins", strings.Join(cfg.CORSOrigins, ","), "Allowed origins ($CORS_ORIGINS)")
	flag.Parse()
	cfg.CORSOrigins = strings.Split(*origins, ",")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting drum2midi API server on %s:%d...\n", cfg.Host, cfg.Port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.Port)

	if err := api.StartServer(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
