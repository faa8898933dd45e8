package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/adfharrison1/go-docstore/pkg/collection"
	"github.com/adfharrison1/go-docstore/pkg/config"
	"github.com/adfharrison1/go-docstore/pkg/shell"
	"github.com/adfharrison1/go-docstore/pkg/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("go-docstore", flag.ContinueOnError)
	var (
		configPath = flags.StringP("config", "c", "", "Configuration file (JSON with comments)")
		file       = flags.StringP("file", "f", "", "Snapshot file; the journal is kept next to it with a .swp suffix")
		name       = flags.StringP("name", "n", "", "Store name")
		format     = flags.String("format", "", "Snapshot format written by save: json or binary")
		durability = flags.String("durability", "", "Journal durability: os or full (fsync every record)")
		interval   = flags.Duration("checkpoint-interval", 0, "Background checkpoint interval (e.g. 30s). 0 disables it.")
		history    = flags.String("history", defaultHistory(), "Interactive shell history file")
		execs      = flags.StringArrayP("exec", "e", nil, "Command to run instead of the interactive shell (repeatable)")
	)

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of go-docstore:\n")
		fmt.Fprintf(os.Stderr, "\ngo-docstore is an embedded document store with a journal and snapshots.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  go-docstore -f wardrobe.json                          # Interactive shell\n")
		fmt.Fprintf(os.Stderr, "  go-docstore -f wardrobe.json -e 'create inge' \\\n")
		fmt.Fprintf(os.Stderr, "      -e 'insert inge {\"dress\": \"noir\"}'                # Scripted\n")
		fmt.Fprintf(os.Stderr, "  go-docstore -c docstore.jsonc --checkpoint-interval 1m\n")
		fmt.Fprintf(os.Stderr, "\nSafety Note:\n")
		fmt.Fprintf(os.Stderr, "  Without a file the store is in memory only. The journal is committed and a\n")
		fmt.Fprintf(os.Stderr, "  snapshot saved on exit.\n")
	}

	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the configuration file
	if flags.Changed("file") {
		cfg.Filename = *file
	}
	if flags.Changed("name") {
		cfg.Name = *name
	}
	if flags.Changed("format") {
		cfg.Format = *format
	}
	if flags.Changed("durability") {
		cfg.Durability = *durability
	}
	if flags.Changed("checkpoint-interval") {
		cfg.CheckpointInterval = interval.String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s := store.New(cfg.StoreConfig(), cfg.StoreOptions(log.Default())...)
	for _, coll := range cfg.Collections {
		if _, err := s.AddCollection(collection.New(collection.Config{Name: coll})); err != nil {
			return err
		}
	}

	if err := open(s); err != nil {
		s.Close()
		return err
	}
	s.StartBackgroundWorkers()

	sh := shell.New(s, os.Stdout)
	var runErr error
	if len(*execs) > 0 {
		for _, line := range *execs {
			if err := sh.Exec(line); err != nil {
				runErr = fmt.Errorf("%s: %w", line, err)
				break
			}
		}
	} else {
		runErr = sh.Run(*history)
	}

	return errors.Join(runErr, shutdown(s))
}

// open loads an existing snapshot and commits any journal left by a previous run
func open(s *store.Store) error {
	if s.Filename() == "" {
		log.Printf("WARN: No file configured - data lives in memory only")
		return nil
	}

	if _, err := os.Stat(s.Filename()); err == nil {
		log.Printf("INFO: Loading data from: %s", s.Filename())
		if err := s.Load(); err != nil {
			return err
		}
	}
	if err := s.Commit(); err != nil {
		return err
	}
	if !s.Persisted() {
		log.Printf("WARN: Journal unavailable - changes are saved only on exit")
	}
	return nil
}

func shutdown(s *store.Store) error {
	defer s.Close()
	if s.Filename() == "" {
		return nil
	}

	log.Printf("INFO: Saving data to: %s", s.Filename())
	return s.Checkpoint()
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".go_docstore_history")
}
