package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"containerflow.ai/internal/persistence/agentdb"
)

func openDB(fs *flag.FlagSet, args []string) *sql.DB {
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "worlds", *worldID, "agents.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

func agentsCmd(args []string) {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print JSON")
	db := openDB(fs, args)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recs, err := agentdb.ListDB(ctx, db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(recs)
		return
	}
	for _, r := range recs {
		target := "-"
		if id, ok := r.Config.TargetID(); ok {
			target = fmt.Sprint(id)
		}
		fmt.Printf("%d\tcollect=%t\tforward=%t\ttarget=%s\t%s\n",
			r.EntityID, r.Config.Collect, r.Config.Forward, target, r.UpdatedAt.Format(time.RFC3339))
	}
}

func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	limit := fs.Int("limit", 20, "result limit")
	db := openDB(fs, args)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := agentdb.ListSnapshots(ctx, db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	if *limit > 0 && len(rows) > *limit {
		rows = rows[:*limit]
	}
	for _, r := range rows {
		fmt.Printf("%d\t%s\tentities=%d\tcontainers=%d\t%s\n", r.Tick, r.Digest, r.Entities, r.Containers, r.Path)
	}
}
