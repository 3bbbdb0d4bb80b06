// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	filesense "github.com/poiesic/filesense"
	"github.com/poiesic/filesense/ai"
	"github.com/poiesic/filesense/mode"
	"github.com/poiesic/filesense/search"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "filesense",
		Usage: "Local hybrid document search (BM25 + dense vectors)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index a file or directory",
				ArgsUsage: "<path>",
				Action:    indexCommand,
				Flags: append(databaseFlags(),
					&cli.BoolFlag{
						Name:    "recursive",
						Aliases: []string{"r"},
						Usage:   "Descend into subdirectories",
						Value:   true,
					},
				),
			},
			{
				Name:      "remove",
				Usage:     "Remove an indexed file or directory",
				ArgsUsage: "<path>",
				Action:    removeCommand,
				Flags:     databaseFlags(),
			},
			{
				Name:      "search",
				Usage:     "Search indexed documents",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(databaseFlags(),
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results to return",
						Value:   search.DefaultK,
					},
					&cli.Float64Flag{
						Name:  "alpha",
						Usage: "Lexical weight in score fusion (0=dense only, 1=lexical only)",
						Value: search.DefaultAlpha,
					},
					&cli.BoolFlag{
						Name:  "rerank",
						Usage: "Rerank by combined score instead of interleaving",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "no-dedup",
						Usage: "Keep duplicate hits from both retrievers",
					},
				),
			},
			{
				Name:      "mode",
				Usage:     "Show or change the operating mode",
				ArgsUsage: "[get|set <name>|auto]",
				Action:    modeCommand,
				Flags:     databaseFlags(),
			},
			{
				Name:   "folders",
				Usage:  "List registered folders and their document counts",
				Action: foldersCommand,
				Flags:  databaseFlags(),
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
				Flags:  databaseFlags(),
			},
			{
				Name:   "clear",
				Usage:  "Delete every indexed document and chunk",
				Action: clearCommand,
				Flags:  databaseFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// databaseFlags are shared by every command that opens the database.
func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the database directory",
			Value:   "./filesense_db",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "all-minilm",
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Pin the operating mode (eco, balanced, performance); default auto-detects",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Override the embedding batch size of the active mode",
		},
	}
}

func openDatabase(c *cli.Context) (*filesense.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts := []filesense.DatabaseOption{
		filesense.WithAIConfig(aiConfig),
		filesense.WithProgress(os.Stderr),
	}
	if name := c.String("mode"); name != "" {
		m, err := mode.ParseMode(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, filesense.WithMode(m))
	}
	if n := c.Int("batch-size"); n > 0 {
		opts = append(opts, filesense.WithBatchSize(n))
	}

	db, err := filesense.NewDatabase(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.LoadIndices(c.Context); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load indices: %w", err)
	}
	return db, nil
}

func indexCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("path argument is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	ctx := c.Context

	if info.IsDir() {
		res, err := pipeline.IndexDir(ctx, path, c.Bool("recursive"))
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d files, %d chunks (mode: %s)\n", res.Files, res.Inserted, res.Mode)
		if res.ModeSwitched {
			fmt.Println("Note: memory pressure forced a switch to eco mode during indexing")
		}
		for _, fe := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", fe.Path, fe.Err)
		}
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := pipeline.IndexDocument(ctx, path, string(content))
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Printf("Unchanged, skipped: %s\n", path)
		return nil
	}
	fmt.Printf("Indexed %d chunks from %s (mode: %s)\n", res.ChunksInserted, path, res.Mode)
	return nil
}

func removeCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("path argument is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewPipeline()
	if err != nil {
		return err
	}
	defer pipeline.Release()

	res, err := pipeline.RemovePath(c.Context, path)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d documents\n", res.Removed)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}

	resp, err := searcher.Search(c.Context, query, search.Options{
		K:           c.Int("k"),
		Alpha:       c.Float64("alpha"),
		Deduplicate: !c.Bool("no-dedup"),
		Rerank:      c.Bool("rerank"),
	})
	if err != nil {
		return err
	}

	if !resp.DenseAvailable {
		fmt.Fprintln(os.Stderr, "Note: dense retrieval unavailable, results are lexical only")
	}
	if !resp.LexicalAvailable {
		fmt.Fprintln(os.Stderr, "Note: lexical retrieval unavailable, results are dense only")
	}

	fmt.Printf("Found %d hits\n", resp.Count)
	for i, hit := range resp.Results {
		fmt.Printf("%d: %s [%.3f] (bm25 %.3f, dense %.3f)\n",
			i+1, hit.Path, hit.CombinedScore, hit.BM25Score, hit.DenseScore)
		fmt.Printf("   %s\n", hit.Snippet)
	}
	return nil
}

func modeCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	switch c.Args().First() {
	case "", "get":
		state := db.ModeState()
		source := "explicit"
		if state.AutoDetected {
			source = "auto-detected"
		}
		fmt.Printf("Mode: %s (%s)\n", state.Mode, source)
		fmt.Printf("Batch size: %d, quantized vectors: %v\n", state.BatchSize, state.Quantized)
		return nil
	case "set":
		name := c.Args().Get(1)
		if name == "" {
			return fmt.Errorf("mode name is required (eco, balanced, performance)")
		}
		m, err := mode.ParseMode(name)
		if err != nil {
			return err
		}
		tr, err := db.SetMode(m)
		if err != nil {
			return err
		}
		fmt.Printf("Mode: %s -> %s\n", tr.Previous, tr.Current)
		return nil
	case "auto":
		detected, err := db.AutoDetect()
		if err != nil {
			return err
		}
		fmt.Printf("Detected mode: %s\n", detected)
		return nil
	default:
		return fmt.Errorf("unknown mode action %q (want get, set, or auto)", c.Args().First())
	}
}

func foldersCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	infos, err := db.Folders(c.Context)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No folders registered")
		return nil
	}

	for _, info := range infos {
		scope := "flat"
		if info.Folder.Recursive {
			scope = "recursive"
		}
		fmt.Printf("%s (%s): %d documents, last indexed %s\n",
			info.Folder.Path, scope, info.Documents,
			info.Folder.LastIndexed.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(c.Context)
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Chunks: %d\n", stats.Chunks)
	fmt.Printf("Lexical index: %d chunks\n", stats.LexicalSize)
	fmt.Printf("Dense index: %d vectors (quantized: %v)\n", stats.DenseSize, stats.Quantized)
	fmt.Printf("Mode: %s\n", stats.Mode)
	return nil
}

func clearCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Clear(c.Context); err != nil {
		return err
	}
	fmt.Println("Cleared all indexed documents")
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
