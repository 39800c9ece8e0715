// klingnet-cli is a command-line tool for inspecting a klingnetd node's
// write-ahead log directly on disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/internal/wal"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	dataDir := defaultDataDir()
	network := "mainnet"

	// Scan for --datadir and --network before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "wal":
		cmdWal(cmdArgs, dataDir, network)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingnet-cli [global flags] <command> [flags]

Global flags:
  --datadir <path>    Data directory (default: ~/.klingnet)
  --network <net>     mainnet (default) or testnet

Commands:
  wal dump               Print every live WAL entry (seq, kind, point)
  wal tail --from <seq>  Follow the WAL live, starting at seq (default: tip)
  wal compact --k <n>    Compact WAL entries more than n slots behind the tip

These wal subcommands open the node's database directly and must not be
run against a datadir a klingnetd process is currently using.
`)
}

func defaultDataDir() string {
	return config.DefaultDataDir()
}

// ── wal ─────────────────────────────────────────────────────────────────

func cmdWal(args []string, dataDir, network string) {
	if len(args) < 1 {
		fatal("Usage: klingnet-cli wal dump | tail --from <seq> | compact --k <n>")
	}

	cfg := config.Default(config.NetworkType(network))
	cfg.DataDir = dataDir
	if fileValues, err := config.LoadFile(cfg.ConfigFile()); err == nil {
		_ = config.ApplyFileConfig(cfg, fileValues)
	}

	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		fatal("open database: %v", err)
	}
	defer db.Close()

	log, err := wal.Open(db)
	if err != nil {
		fatal("open wal: %v", err)
	}

	switch args[0] {
	case "dump":
		cmdWalDump(log)
	case "tail":
		cmdWalTail(log, args[1:])
	case "compact":
		cmdWalCompact(log, args[1:], cfg.Wal.RollbackHorizon)
	default:
		fatal("Unknown wal subcommand: %s", args[0])
	}
}

// cmdWalDump prints every entry still live in the WAL, oldest first,
// across Apply, Undo, and Mark alike — not just the block page a
// ledger-rebuild tool would read.
func cmdWalDump(log *wal.Log) {
	tipSeq, _, ok, err := log.FindTip()
	if err != nil {
		fatal("find tip: %v", err)
	}
	if !ok {
		fmt.Println("(wal is empty)")
		return
	}

	sub := log.Stream(context.Background(), 1)
	for {
		entry, err := sub.Next()
		if err != nil {
			fatal("read wal: %v", err)
		}
		printWalEntry(entry)
		if entry.Seq >= tipSeq {
			return
		}
	}
}

func cmdWalTail(log *wal.Log, args []string) {
	fs := flag.NewFlagSet("wal tail", flag.ExitOnError)
	from := fs.Uint64("from", 0, "seq to start from (0 = current tip)")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fromSeq := *from
	if fromSeq == 0 {
		seq, _, ok, err := log.FindTip()
		if err != nil {
			fatal("find tip: %v", err)
		}
		if ok {
			fromSeq = seq
		}
	}

	sub := log.Stream(ctx, fromSeq)
	for {
		entry, err := sub.Next()
		if err != nil {
			return
		}
		printWalEntry(entry)
	}
}

func printWalEntry(entry wal.Entry) {
	switch entry.Value.Kind {
	case wal.KindApply:
		fmt.Printf("seq=%d apply slot=%d hash=%s\n", entry.Seq, entry.Value.Block.Slot, entry.Value.Block.Hash)
	case wal.KindUndo:
		fmt.Printf("seq=%d undo  slot=%d hash=%s\n", entry.Seq, entry.Value.Block.Slot, entry.Value.Block.Hash)
	case wal.KindMark:
		fmt.Printf("seq=%d mark  point=%s\n", entry.Seq, entry.Value.Mark)
	}
}

func cmdWalCompact(log *wal.Log, args []string, defaultK uint64) {
	fs := flag.NewFlagSet("wal compact", flag.ExitOnError)
	k := fs.Uint64("k", defaultK, "rollback horizon: slots to keep live behind the tip (default: cfg.Wal.RollbackHorizon)")
	fs.Parse(args)

	if err := log.Compact(*k); err != nil {
		fatal("compact: %v", err)
	}
	fmt.Println("compaction complete")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
