//
// Copyright (C) 2025 CanvasFlow Authors.  All rights reserved.
//
// canvasflow is licensed under the Apache License Version 2.0.
//
//

// Command canvasflowd serves the workflow execution engine over HTTP.
// Graph definitions are loaded read-only from JSON files supplied on the
// command line; runs are persisted to SQLite when -db is set.
package main

import (
	"database/sql"
	"flag"
	"net/http"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canvasflow-ai/canvasflow/graph"
	"github.com/canvasflow-ai/canvasflow/knowledge/inmemory"
	"github.com/canvasflow-ai/canvasflow/log"
	openaimodel "github.com/canvasflow-ai/canvasflow/model/openai"
	"github.com/canvasflow-ai/canvasflow/server"
)

func main() {
	var (
		addr     = flag.String("addr", ":8080", "listen address")
		dbPath   = flag.String("db", "", "sqlite database path (empty = in-memory store)")
		modelID  = flag.String("model", "gpt-4o-mini", "default model identifier")
		logLevel = flag.String("log-level", log.LevelInfo, "log level")
	)
	flag.Parse()
	log.SetLevel(*logLevel)

	store, err := buildStore(*dbPath)
	if err != nil {
		log.Fatalf("open run store: %v", err)
	}

	registry := graph.NewDefaultRegistry(
		graph.WithModel(openaimodel.New(*modelID,
			openaimodel.WithAPIKey(os.Getenv("OPENAI_API_KEY")))),
		graph.WithRetriever(inmemory.New()),
	)

	executor, err := graph.NewExecutor(
		graph.WithStore(store),
		graph.WithRegistry(registry),
	)
	if err != nil {
		log.Fatalf("create executor: %v", err)
	}
	defer executor.Close()

	srv := server.New(executor)
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read graph %s: %v", path, err)
		}
		g, err := graph.Load(data)
		if err != nil {
			log.Fatalf("load graph %s: %v", path, err)
		}
		srv.RegisterGraph(g)
		log.Infof("registered graph %s from %s", g.ID(), path)
	}

	log.Infof("canvasflowd listening on %s", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

func buildStore(dbPath string) (graph.RunStore, error) {
	if dbPath == "" {
		return graph.NewInMemoryRunStore(), nil
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	return graph.NewSQLiteRunStoreFromDB(db)
}
