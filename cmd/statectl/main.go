// Command statectl inspects and maintains the persisted strategy state
// database.
//
// Usage:
//
//	statectl [-db path] [-y] <command> [args]
//
// Commands:
//
//	list              list persisted strategies
//	show <strategy>   print a strategy's saved state
//	delete <strategy> remove one strategy's state
//	reset-all         remove all persisted state
//
// Destructive commands prompt for confirmation unless -y is given.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/bingolead-stack/levelbot/internal/storage"
)

func main() {
	dbPath := flag.String("db", "data/levelbot_state.db", "path to the state database")
	assumeYes := flag.Bool("y", false, "skip confirmation prompts")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := storage.NewSQLiteStore(*dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	if err := dispatchCommand(store, flag.Args(), *assumeYes); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-db path] [-y] <list|show|delete|reset-all> [strategy]\n", os.Args[0])
	flag.PrintDefaults()
}

func dispatchCommand(store *storage.SQLiteStore, args []string, assumeYes bool) error {
	switch args[0] {
	case "list":
		return runList(store)
	case "show":
		if len(args) < 2 {
			return errors.New("show requires a strategy name")
		}
		return runShow(store, args[1])
	case "delete":
		if len(args) < 2 {
			return errors.New("delete requires a strategy name")
		}
		return runDelete(store, args[1], assumeYes)
	case "reset-all":
		return runResetAll(store, assumeYes)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runList(store *storage.SQLiteStore) error {
	names, err := store.ListStrategies()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no persisted strategies")
		return nil
	}
	for _, name := range names {
		line := name
		if at, err := store.LastUpdated(name); err == nil {
			line = fmt.Sprintf("%s\t(updated %s)", name, at.Format("2006-01-02 15:04:05"))
		}
		fmt.Println(line)
	}
	return nil
}

func runShow(store *storage.SQLiteStore, name string) error {
	snap, found, err := store.LoadState(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no saved state for %q", name)
	}

	fmt.Printf("Strategy: %s\n", name)
	fmt.Printf("  Total PnL:        %.2f\n", snap.TotalPnL)
	fmt.Printf("  Cash value:       %.2f\n", snap.CurrentCashValue)
	fmt.Printf("  Open trades:      %d (list size %d)\n", snap.OpenTradeCount, len(snap.OpenTrades))
	fmt.Printf("  History records:  %d\n", len(snap.TradeHistory))
	fmt.Printf("  Closing events:   %d\n", len(snap.CumulativePnL))
	fmt.Printf("  Ladder levels:    %d\n", len(snap.StaticLevels))
	if snap.BarTime != nil {
		fmt.Printf("  Last bar:         %s\n", snap.BarTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Win rate:         %.2f%% over %d trades\n", snap.Stats.WinRate, snap.Stats.TotalTrades)

	active := 0
	for _, dir := range snap.Retraces {
		if dir != "" {
			active++
		}
	}
	fmt.Printf("  Armed retraces:   %d\n", active)

	for _, trade := range snap.OpenTrades {
		fmt.Printf("  open %-5s entry=%.2f stop=%.2f tp=%.2f", trade.Side,
			trade.EntryPrice, trade.StopLevel, trade.TakeProfitLevel)
		if trade.TrailingStop != nil {
			fmt.Printf(" trail=%.2f", *trade.TrailingStop)
		}
		fmt.Println()
	}
	return nil
}

func runDelete(store *storage.SQLiteStore, name string, assumeYes bool) error {
	_, found, err := store.LoadState(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no saved state for %q", name)
	}
	if !confirm(fmt.Sprintf("Delete all state for %q?", name), assumeYes) {
		fmt.Println("aborted")
		return nil
	}
	if err := store.DeleteState(name); err != nil {
		return err
	}
	fmt.Printf("deleted state for %q\n", name)
	return nil
}

func runResetAll(store *storage.SQLiteStore, assumeYes bool) error {
	names, err := store.ListStrategies()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no persisted strategies")
		return nil
	}
	if !confirm(fmt.Sprintf("Delete state for ALL %d strategies?", len(names)), assumeYes) {
		fmt.Println("aborted")
		return nil
	}
	for _, name := range names {
		if err := store.DeleteState(name); err != nil {
			return err
		}
		fmt.Printf("deleted state for %q\n", name)
	}
	return nil
}

func confirm(prompt string, assumeYes bool) bool {
	if assumeYes {
		return true
	}
	fmt.Printf("%s [yes/no]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}
