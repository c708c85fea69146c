package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/deltalog"
	"github.com/cuemby/delta/pkg/events"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <table-path>",
	Short: "Show the table's latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		defer registry.Close()
		dl, err := registry.Open(args[0])
		if err != nil {
			return err
		}
		snap, err := dl.Update()
		if err != nil {
			return err
		}
		md := snap.Metadata()
		fmt.Printf("Table:      %s (%s)\n", md.Name, md.ID)
		fmt.Printf("Version:    %d\n", snap.Version())
		fmt.Printf("Protocol:   reader=%d writer=%d\n",
			snap.Protocol().MinReaderVersion, snap.Protocol().MinWriterVersion)
		fmt.Printf("Partition:  [%s]\n", strings.Join(md.PartitionColumns, ", "))
		fmt.Printf("Files:      %d (%d bytes)\n", snap.NumFiles(), snap.SizeInBytes())
		showFiles, _ := cmd.Flags().GetBool("files")
		if showFiles {
			for _, f := range snap.AllFiles() {
				fmt.Printf("  %s  %d bytes\n", f.Path, f.Size)
			}
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log <table-path> <version>",
	Short: "Print the raw actions of one log version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		defer registry.Close()
		dl, err := registry.Open(args[0])
		if err != nil {
			return err
		}
		var version int64
		if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		lines, err := dl.Store().Read(version)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <table-path>",
	Short: "List commits, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		defer registry.Close()
		dl, err := registry.Open(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := dl.History(limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			printHistoryEntry(e)
		}
		follow, _ := cmd.Flags().GetBool("follow")
		if !follow {
			return nil
		}
		return followHistory(dl)
	},
}

func printHistoryEntry(e deltalog.HistoryEntry) {
	if e.CommitInfo == nil {
		fmt.Printf("%6d  %-20s %s\n", e.Version, "-", "-")
		return
	}
	ts := time.UnixMilli(e.CommitInfo.Timestamp).UTC().Format(time.RFC3339)
	fmt.Printf("%6d  %-20s %s\n", e.Version, e.CommitInfo.Operation, ts)
}

// followHistory tails the table: broker events wake it for in-process
// commits, a slow poll catches writers in other processes. Runs until
// interrupted.
func followHistory(dl *deltalog.DeltaLog) error {
	broker := dl.Broker()
	if broker == nil {
		return fmt.Errorf("table has no event broker to follow")
	}
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	last := int64(-1)
	if snap := dl.Snapshot(); snap != nil {
		last = snap.Version()
	}
	printNew := func() error {
		snap, err := dl.Update()
		if err != nil {
			if errors.Is(err, deltalog.ErrTableNotInitialized) {
				return nil
			}
			return err
		}
		for v := last + 1; v <= snap.Version(); v++ {
			lines, err := dl.Store().Read(v)
			if err != nil {
				return err
			}
			actions, err := action.DecodeAll(lines)
			if err != nil {
				return err
			}
			entry := deltalog.HistoryEntry{Version: v}
			for _, a := range actions {
				if ci, ok := a.(*action.CommitInfo); ok {
					entry.CommitInfo = ci
					break
				}
			}
			printHistoryEntry(entry)
		}
		last = snap.Version()
		return nil
	}

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			if event.Type != events.EventCommit || event.Table != dl.Path() {
				continue
			}
			if err := printNew(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := printNew(); err != nil {
				return err
			}
		case <-stop:
			return nil
		}
	}
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <table-path>",
	Short: "Write a checkpoint at the latest version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := newRegistry()
		defer registry.Close()
		dl, err := registry.Open(args[0])
		if err != nil {
			return err
		}
		snap, err := dl.Update()
		if err != nil {
			return err
		}
		if err := dl.Checkpoints().Write(snap); err != nil {
			return err
		}
		fmt.Printf("Checkpoint written at version %d\n", snap.Version())
		return nil
	},
}

func init() {
	snapshotCmd.Flags().Bool("files", false, "List data files")
	historyCmd.Flags().Int("limit", 20, "Maximum commits to show (0 = all)")
	historyCmd.Flags().Bool("follow", false, "Keep the command open and print new commits as they land")
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(checkpointCmd)
}
