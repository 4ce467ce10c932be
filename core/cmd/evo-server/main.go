package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	evo "github.com/juoon/evo-sub000/core"
	"github.com/juoon/evo-sub000/host"
	"github.com/juoon/evo-sub000/profile"
)

func main() {
	sockPath := os.Getenv("EVO_SOCK")
	if sockPath == "" {
		sockPath = "/tmp/evo.sock"
	}

	dir := os.Getenv("EVO_DIR")
	if dir == "" {
		dir = "."
	}

	threshold := evo.DefaultThreshold
	if s := os.Getenv("EVO_JIT_THRESHOLD"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			log.Fatalf("invalid EVO_JIT_THRESHOLD %q: %v", s, err)
		}
		threshold = n
	}

	ev := evo.NewEvaluator()
	ev.ModuleRoot = dir
	if p := os.Getenv("EVO_PATH"); p != "" {
		ev.ModulePath = filepath.SplitList(p)
	}
	opt := evo.NewOptimizer(ev, evo.WithThreshold(threshold), evo.WithLogger(log.Default()))

	var store *profile.Store
	if dbPath := os.Getenv("EVO_PROFILE_DB"); dbPath != "" {
		var err error
		store, err = profile.Open(dbPath)
		if err != nil {
			log.Fatalf("failed to open profile database: %v", err)
		}
		saved, err := store.Load()
		if err != nil {
			log.Fatalf("failed to load profiles: %v", err)
		}
		opt.Restore(saved)
		log.Printf("restored %d hot-spot profiles", len(saved))
	}

	server, err := host.NewServer(sockPath, opt, store)
	if err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	// Handle shutdown signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Println("shutting down...")
		server.Shutdown()
		os.Exit(0)
	}()

	log.Printf("evo server listening (socket: %s, module dir: %s, threshold: %d)", sockPath, dir, threshold)
	server.Run()
}
