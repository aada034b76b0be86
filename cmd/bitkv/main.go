// Command bitkv is a minimal operational front door to a bitkv directory:
// point it at a data directory and run one operation per invocation.
//
//	bitkv --dir /tmp/db put greeting hello
//	bitkv --dir /tmp/db get greeting
//	bitkv --dir /tmp/db list
//	bitkv --dir /tmp/db stats
//	bitkv --dir /tmp/db merge
//	bitkv --dir /tmp/db backup /tmp/db-backup
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/KevinZh0A/bitkv/pkg/bitkv"
	"github.com/KevinZh0A/bitkv/pkg/errors"
	"github.com/KevinZh0A/bitkv/pkg/options"
)

func main() {
	var (
		dir        = pflag.String("dir", "", "data directory (required)")
		indexType  = pflag.String("index", string(options.IndexTypeBTree), "index type: BTree, SkipList, or BPlusTree")
		syncWrites = pflag.Bool("sync-writes", false, "fsync after every write")
	)
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if *dir == "" || len(args) == 0 {
		usage()
		os.Exit(2)
	}

	db, err := bitkv.Open(context.Background(), "bitkv-cli",
		options.WithDataDir(*dir),
		options.WithIndexType(options.IndexType(*indexType)),
		options.WithSyncWrites(*syncWrites),
	)
	if err != nil {
		fatal(err)
	}

	runErr := run(db, args)
	if err := db.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		fatal(runErr)
	}
}

func run(db *bitkv.DB, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "put":
		if len(rest) != 2 {
			return fmt.Errorf("usage: put <key> <value>")
		}
		return db.Put([]byte(rest[0]), []byte(rest[1]))

	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: get <key>")
		}
		value, err := db.Get([]byte(rest[0]))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil

	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: delete <key>")
		}
		return db.Delete([]byte(rest[0]))

	case "list":
		for _, key := range db.ListKeys() {
			fmt.Println(string(key))
		}
		return nil

	case "stats":
		stats := db.Stats()
		fmt.Printf("keys:        %d\n", stats.KeyNum)
		fmt.Printf("segments:    %d\n", stats.DataFileNum)
		fmt.Printf("reclaimable: %d bytes\n", stats.ReclaimableBytes)
		fmt.Printf("disk size:   %d bytes\n", stats.DiskSize)
		return nil

	case "merge":
		return db.Merge()

	case "backup":
		if len(rest) != 1 {
			return fmt.Errorf("usage: backup <target-dir>")
		}
		return db.Backup(rest[0])

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `bitkv - embedded key/value store CLI

Usage:
  bitkv --dir <path> [flags] <command> [args]

Commands:
  put <key> <value>     store a key/value pair
  get <key>             print a key's value
  delete <key>          remove a key
  list                  print every live key
  stats                 print store statistics
  merge                 compact the store
  backup <target-dir>   copy the store to another directory

Flags:
`)
	pflag.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "bitkv: %v (%s)\n", err, errors.GetErrorCode(err))
	for key, value := range errors.GetErrorDetails(err) {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
	}
	os.Exit(1)
}
