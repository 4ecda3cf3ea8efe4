package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/a5c-ai/hub/internal/config"
	"github.com/a5c-ai/hub/internal/coordinator"
	"github.com/a5c-ai/hub/internal/progress"
	"github.com/a5c-ai/hub/internal/statusserver"
)

func main() {
	var paths string
	flag.StringVar(&paths, "paths", "", "comma-separated journal path codes to filter the journals index (INDEX stage only)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--paths=a,b,c] <index|fetch|push>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	op := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("loading configuration: ", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	var filterPaths []string
	if paths != "" {
		filterPaths = strings.Split(paths, ",")
	}

	var observer progress.Observer = progress.NewLogrusObserver(logger)
	if cfg.Status.Enabled {
		hub := statusserver.NewHub()
		observer = statusserver.NewObservingObserver(observer, hub)
		go runStatusServer(hub, cfg.Status.Addr, logger)
	}

	coord, err := coordinator.New(cfg, observer, logger)
	if err != nil {
		log.Fatal("constructing coordinator: ", err)
	}
	defer coord.Close()
	runOperation(coord, op, filterPaths, logger)
}

func runStatusServer(hub *statusserver.Hub, addr string, logger *logrus.Logger) {
	srv := statusserver.New(hub, logger)
	if err := srv.Run(addr); err != nil {
		logger.WithError(err).Error("status server stopped")
	}
}

func runOperation(coord *coordinator.Coordinator, op string, filterPaths []string, logger *logrus.Logger) {
	ctx := context.Background()
	var err error
	switch op {
	case "index":
		err = coord.FetchIndexes(ctx, filterPaths)
	case "fetch":
		err = coord.FetchData(ctx, filterPaths)
	case "push":
		err = coord.PushData(ctx, filterPaths)
	default:
		log.Fatalf("unknown operation %q: expected index, fetch, or push", op)
	}
	if err != nil {
		logger.WithError(err).Fatalf("%s stage failed", op)
	}
}
