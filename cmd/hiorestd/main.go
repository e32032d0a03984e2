// File: cmd/hiorestd/main.go
//
// hiorestd boots a Reactor-backed HTTP/1.1 REST server from a YAML config
// file, wires a small demo route tree, and shuts down cleanly on SIGINT/
// SIGTERM.
//
// Grounded on the teacher's examples/stest/server/main.go (flag-parsed
// listen address, DefaultConfig/New/Start, signal-driven shutdown).
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/hiorest/config"
	"github.com/momentics/hiorest/router"
	"github.com/momentics/hiorest/server"
	"github.com/momentics/hiorest/xlog"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	addr := flag.String("addr", "", "listen address, overrides config (e.g. :8080)")
	flag.Parse()

	logger := xlog.Default()

	cfg := config.DefaultServerConfig()
	if *configPath != "" {
		store, err := config.LoadYAML(*configPath)
		if err != nil {
			log.Fatalf("hiorestd: %v", err)
		}
		cfg = config.DecodeServerConfig(store)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	root := buildRoutes(logger)

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.ListenAddr
	srvCfg.NumWorkers = cfg.ReactorWorkers
	srvCfg.QueueCapacity = cfg.QueueCapacity
	srvCfg.Logger = logger

	srv, err := server.New(srvCfg, root)
	if err != nil {
		log.Fatalf("hiorestd: %v", err)
	}
	if err := srv.Start(); err != nil {
		log.Fatalf("hiorestd: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Infof("hiorestd: shutting down")
	srv.Shutdown(time.Duration(cfg.ShutdownTimeout) * time.Second)
}

// buildRoutes wires a minimal demo tree: GET /healthz and a /v1/items
// namespace with list/get handlers, enough to exercise the router's verb
// filtering, regex capture, and OPTIONS synthesis end to end.
func buildRoutes(logger xlog.Logger) *router.Router {
	root := router.New("hiorestd", false, logger)

	root.AddTerminal(router.Literal("/healthz"), []string{"GET"}, "liveness probe", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		conn.SendResponse(200, []byte("ok"), "text/plain")
		return router.Matched
	})

	v1 := root.AddSubRouter(router.Literal("/v1"), "API v1", nil)
	items := v1.AddSubRouter(router.Literal("/items"), "item collection", nil)

	items.AddTerminal(router.Literal(""), []string{"GET"}, "list items", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		conn.SendResponse(200, []byte("[]"), "application/json")
		return router.Matched
	})

	items.AddTerminal(router.Rx(`^/([0-9]+)$`, "/items/<id>"), []string{"GET"}, "get item by id", func(conn router.RestConnection, req *router.Request, ctx *router.ParsingContext) router.MatchResult {
		id := ctx.Resources[len(ctx.Resources)-1]
		conn.SendResponse(200, []byte(`{"id":"`+id+`"}`), "application/json")
		return router.Matched
	})

	return root
}
