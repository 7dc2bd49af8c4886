// Memoryd is the semantic memory service.
//
// It stores short text memories with optional embedding vectors and answers
// similarity searches over them, falling back to substring matching when
// the embedding server is unavailable.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (--config or MEMORYD_CONFIG), then environment variables.
//
// Common environment variables:
//
//	DATA_DIR                    - directory holding memories.db (default ".")
//	LLAMA_SERVER_URL            - llama-server root, llama provider only (default "http://localhost:5000")
//	MEMORYD_STORAGE_DRIVER      - "sqlite" (default) or "postgres"
//	MEMORYD_POSTGRES_DSN        - Postgres connection string
//	MEMORYD_EMBEDDING_PROVIDER  - "llama" (default), "openai", "ollama" or "none"
//	MEMORYD_HTTP_ADDR           - listen address (default ":3000")
//	MEMORYD_LOG_LEVEL           - "debug", "info", "warn", "error" (default "info")
//	MEMORYD_LOG_FORMAT          - "json" (default) or "console"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
