package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"containerflow.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "agents":
			agentsCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "agent":
			agentCmd(os.Args[2:])
			return
		case "containers":
			containersCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

type snapshotSummary struct {
	Header     snapshot.Header `json:"header"`
	NextID     int64           `json:"next_id"`
	Entities   int             `json:"entities"`
	Containers int             `json:"containers"`
	Items      int             `json:"items"`
	ByCategory map[string]int  `json:"by_category"`
	ItemTypes  map[string]int  `json:"item_types"`
}

func summarize(snap snapshot.SnapshotV1) snapshotSummary {
	sum := snapshotSummary{
		Header:     snap.Header,
		NextID:     snap.NextID,
		Entities:   len(snap.Entities),
		ByCategory: map[string]int{},
		ItemTypes:  map[string]int{},
	}
	for _, e := range snap.Entities {
		sum.ByCategory[e.Category]++
		if e.Inventory == nil {
			continue
		}
		sum.Containers++
		for _, it := range e.Inventory.Items {
			sum.Items++
			sum.ItemTypes[it.Type]++
		}
	}
	return sum
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	path := fs.String("path", "", "snapshot path (required)")
	headerOnly := fs.Bool("header", false, "print only the header line")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -path")
		os.Exit(2)
	}
	if *headerOnly {
		h, err := snapshot.ReadHeader(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	printJSON(summarize(snap))
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
