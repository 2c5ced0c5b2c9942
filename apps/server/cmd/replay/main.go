// Command replay re-simulates a recorded match and prints every board.
//
//	replay -tape match.json
//	replay -db data/results.db -match <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"tetris-lite/apps/server/internal/results"
	"tetris-lite/replay"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	tapePath := fs.String("tape", "", "tape JSON file")
	dbPath := fs.String("db", "", "results sqlite database")
	matchID := fs.String("match", "", "match id to load from -db")
	trace := fs.Bool("trace", false, "print the digest trace")
	export := fs.String("export", "", "write the loaded tape to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tape, err := load(*tapePath, *dbPath, *matchID)
	if err != nil {
		return err
	}
	if *export != "" {
		if err := writeTape(*export, tape); err != nil {
			return err
		}
	}

	res, err := replay.Run(tape, replay.Options{Trace: *trace})
	var rerr *replay.ReplayError
	if err != nil && !(errors.As(err, &rerr) && res != nil) {
		return err
	}

	fmt.Fprintf(out, "match %s: %d ticks\n", tape.MatchID, res.Ticks)
	switch {
	case res.Outcome.Winner != "":
		fmt.Fprintf(out, "winner: %s\n", res.Outcome.Winner)
	case res.Outcome.Draw:
		fmt.Fprintln(out, "draw")
	case !res.Outcome.Done:
		fmt.Fprintln(out, "undecided")
	}
	for _, s := range res.Standings {
		fmt.Fprintf(out, "  #%d %-12s score=%d lines=%d level=%d pieces=%d %s\n",
			s.Place, s.Board, s.Score, s.Lines, s.Level, s.Pieces, s.TopOutReason)
	}
	for _, b := range res.Boards {
		fmt.Fprintf(out, "\n[%s] digest=%016x\n%s", b.Board, b.Digest, b.Render())
	}
	if *trace {
		fmt.Fprintln(out)
		for _, t := range res.Trace {
			fmt.Fprintf(out, "%8d %-12s %016x\n", t.Tick, t.Board, t.Digest)
		}
	}
	// A divergence is still reported after the boards so it can be inspected.
	return err
}

func load(tapePath, dbPath, matchID string) (replay.Tape, error) {
	switch {
	case tapePath != "" && dbPath != "":
		return replay.Tape{}, errors.New("use either -tape or -db, not both")
	case tapePath != "":
		f, err := os.Open(tapePath)
		if err != nil {
			return replay.Tape{}, err
		}
		defer f.Close()
		return replay.Decode(f)
	case dbPath != "":
		if matchID == "" {
			return replay.Tape{}, errors.New("-db needs -match")
		}
		return loadFromStore(dbPath, matchID)
	default:
		return replay.Tape{}, errors.New("one of -tape or -db is required")
	}
}

func loadFromStore(path, matchID string) (replay.Tape, error) {
	store, err := results.NewSQLiteStore(path)
	if err != nil {
		return replay.Tape{}, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Get(ctx, matchID)
	if err != nil {
		return replay.Tape{}, fmt.Errorf("match %s: %w", matchID, err)
	}
	if s.Tape == nil {
		return replay.Tape{}, fmt.Errorf("match %s has no tape", matchID)
	}
	return *s.Tape, nil
}

func writeTape(path string, t replay.Tape) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := replay.Encode(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
