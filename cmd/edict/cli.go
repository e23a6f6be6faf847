package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/codegangsta/cli"

	"github.com/andreyvit/edict"
	"github.com/andreyvit/edict/journal"
	"github.com/andreyvit/edict/metrics"
	"github.com/andreyvit/edict/mmap"
	"github.com/andreyvit/edict/store"
)

var usage = `inspect and convert serialized dictionaries.

	Files hold a single MessagePack message as written by Dictionary.WriteFile.
	Journals are directories of segment files appended to by a Recorder, one
	snapshot per record. Stores are Bolt databases of named snapshots.`

const defaultPattern = "snapshots-*.wal"

type edictCli struct {
	app    *cli.App
	stderr io.Writer
	logger *slog.Logger
	events *metrics.EventCounter
}

func newEdictCli(stdout, stderr io.Writer) *edictCli {
	e := &edictCli{
		stderr: stderr,
		events: metrics.NewEventCounter("edict"),
	}
	app := cli.NewApp()
	app.Name = "edict"
	app.Usage = usage
	app.Writer = stdout
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log debug messages",
		},
		cli.BoolFlag{
			Name:  "stats",
			Usage: "print event counts on exit",
		},
	}
	app.Before = e.setup
	app.After = e.printStats

	patternFlag := cli.StringFlag{
		Name:  "pattern, p",
		Usage: "journal segment file name pattern",
		Value: defaultPattern,
	}

	app.Commands = []cli.Command{
		{
			Name:      "dump",
			Usage:     "Prints the contents of dictionary files.",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "raw",
					Usage: "print the wire message as is instead of the inferred dictionary",
				},
			},
			Action: e.cmdDump,
		},
		{
			Name:      "keys",
			Usage:     "Lists the keys of a dictionary file, or of the map at a key path inside it.",
			ArgsUsage: "FILE [KEY...]",
			Action:    e.cmdKeys,
		},
		{
			Name:      "get",
			Usage:     "Prints the node at a key path.",
			ArgsUsage: "FILE KEY...",
			Action:    e.cmdGet,
		},
		{
			Name:      "record",
			Usage:     "Appends dictionary files to a journal, one snapshot per file.",
			ArgsUsage: "DIR FILE...",
			Flags: []cli.Flag{
				patternFlag,
				cli.BoolFlag{
					Name:  "compress",
					Usage: "snappy-compress records",
				},
			},
			Action: e.cmdRecord,
		},
		{
			Name:      "replay",
			Usage:     "Prints every snapshot in a journal.",
			ArgsUsage: "DIR",
			Flags: []cli.Flag{
				patternFlag,
			},
			Action: e.cmdReplay,
		},
		{
			Name:      "save",
			Usage:     "Saves a dictionary file into a store under a name.",
			ArgsUsage: "DB NAME FILE",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "compress",
					Usage: "snappy-compress the snapshot",
				},
			},
			Action: e.cmdSave,
		},
		{
			Name:      "load",
			Usage:     "Prints a snapshot from a store, or writes it into a file.",
			ArgsUsage: "DB NAME [FILE]",
			Action:    e.cmdLoad,
		},
		{
			Name:      "ls",
			Usage:     "Lists the snapshots of a store.",
			ArgsUsage: "DB [PREFIX]",
			Action:    e.cmdList,
		},
		{
			Name:      "stats",
			Usage:     "Summarizes the contents of a store.",
			ArgsUsage: "DB",
			Action:    e.cmdStats,
		},
		{
			Name:      "rm",
			Usage:     "Deletes a snapshot from a store.",
			ArgsUsage: "DB NAME",
			Action:    e.cmdRemove,
		},
	}
	e.app = app
	return e
}

func (e *edictCli) run(args []string) error {
	return e.app.Run(args)
}

func (e *edictCli) setup(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

func (e *edictCli) printStats(c *cli.Context) error {
	if !c.Bool("stats") {
		return nil
	}
	for _, k := range edict.AllEventKinds {
		fmt.Fprintf(e.stderr, "%s\t%d\n", k, e.events.Count(k))
	}
	return nil
}

func (e *edictCli) dictOptions() edict.Options {
	return e.events.Instrument(edict.Options{Logger: e.logger})
}

func needArgs(c *cli.Context, n int) error {
	if c.NArg() < n {
		return fmt.Errorf("%s: expected %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}

// cmdDump implements the "dump" subcommand.
func (e *edictCli) cmdDump(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	for _, path := range c.Args() {
		var text string
		if c.Bool("raw") {
			var err error
			text, err = dumpRaw(path)
			if err != nil {
				return err
			}
		} else {
			d, err := edict.Load(path, e.dictOptions())
			if err != nil {
				return err
			}
			text = d.String()
		}
		if c.NArg() > 1 {
			fmt.Fprintf(c.App.Writer, "%s: %s\n", path, text)
		} else {
			fmt.Fprintln(c.App.Writer, text)
		}
	}
	return nil
}

// dumpRaw renders the message in the file at path without inferring types.
func dumpRaw(path string) (string, error) {
	m, err := mmap.Open(path, mmap.SequentialAccess)
	if err != nil {
		return "", err
	}
	defer m.Close()
	n, err := edict.Parse(m.Data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return n.String(), nil
}

// cmdKeys implements the "keys" subcommand.
func (e *edictCli) cmdKeys(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	d, err := e.lookup(c.Args().First(), c.Args().Tail())
	if err != nil {
		return err
	}
	if d.IsValue() {
		info, _ := d.TypeInfo()
		return fmt.Errorf("%s holds a %s value", strings.Join(c.Args().Tail(), "."), info.Name)
	}
	for _, key := range d.Keys() {
		fmt.Fprintln(c.App.Writer, key)
	}
	return nil
}

// cmdGet implements the "get" subcommand.
func (e *edictCli) cmdGet(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	d, err := e.lookup(c.Args().First(), c.Args().Tail())
	if err != nil {
		return err
	}
	if info, ok := d.TypeInfo(); ok && c.GlobalBool("verbose") {
		fmt.Fprintf(c.App.Writer, "%s = %s\n", info.Name, d)
		return nil
	}
	fmt.Fprintln(c.App.Writer, d)
	return nil
}

func (e *edictCli) lookup(path string, keys []string) (*edict.Dictionary, error) {
	d, err := edict.Load(path, e.dictOptions())
	if err != nil {
		return nil, err
	}
	return d.LookupPath(keys...)
}

// cmdRecord implements the "record" subcommand.
func (e *edictCli) cmdRecord(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	rec, err := edict.NewRecorder(c.Args().First(), journal.Options{
		FileName: c.String("pattern"),
		Compress: c.Bool("compress"),
		Sync:     true,
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	for _, path := range c.Args().Tail() {
		d, err := edict.Load(path, e.dictOptions())
		if err != nil {
			rec.Close()
			return err
		}
		if err := rec.Record(d, 0); err != nil {
			rec.Close()
			return fmt.Errorf("%s: %w", path, err)
		}
		e.logger.Debug("recorded", "file", path)
	}
	return rec.Close()
}

// cmdReplay implements the "replay" subcommand.
func (e *edictCli) cmdReplay(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	j := journal.New(c.Args().First(), journal.Options{
		FileName: c.String("pattern"),
		Logger:   e.logger,
	})
	return edict.Replay(j, e.dictOptions(), func(rec *journal.Record, d *edict.Dictionary) error {
		fmt.Fprintf(c.App.Writer, "#%d %s %s\n", rec.ID, rec.Time().Format(time.RFC3339), d)
		return nil
	})
}

func (e *edictCli) openStore(c *cli.Context) (*store.Store, error) {
	return store.Open(c.Args().First(), store.Options{
		Dict:     e.dictOptions(),
		Logger:   e.logger,
		Compress: c.Bool("compress"),
	})
}

// cmdSave implements the "save" subcommand.
func (e *edictCli) cmdSave(c *cli.Context) error {
	if err := needArgs(c, 3); err != nil {
		return err
	}
	d, err := edict.Load(c.Args().Get(2), e.dictOptions())
	if err != nil {
		return err
	}
	s, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	info, err := s.Save(c.Args().Get(1), d)
	if err != nil {
		return err
	}
	e.logger.Info("saved", "name", info.Name, "version", info.Version, "size", info.Size)
	return nil
}

// cmdLoad implements the "load" subcommand.
func (e *edictCli) cmdLoad(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	s, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	d, err := s.Load(c.Args().Get(1))
	if err != nil {
		return err
	}
	if out := c.Args().Get(2); out != "" {
		return d.WriteFile(out, edict.WriteFileOptions{Atomic: true, Sync: true})
	}
	fmt.Fprintln(c.App.Writer, d)
	return nil
}

// cmdList implements the "ls" subcommand.
func (e *edictCli) cmdList(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	s, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	infos, err := s.List(c.Args().Get(1))
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Fprintf(c.App.Writer, "%s\tv%d\t%d\t%s\n", info.Name, info.Version, info.Size, info.SavedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// cmdStats implements the "stats" subcommand.
func (e *edictCli) cmdStats(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	s, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	st, err := s.Stats()
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "snapshots\t%d\n", st.Snapshots)
	fmt.Fprintf(w, "compressed\t%d\n", st.Compressed)
	fmt.Fprintf(w, "invalid\t%d\n", st.Invalid)
	fmt.Fprintf(w, "size\t%d\n", st.ValueSize)
	fmt.Fprintf(w, "inuse\t%d\n", st.DataSize)
	fmt.Fprintf(w, "alloc\t%d\n", st.DataAlloc)
	return nil
}

// cmdRemove implements the "rm" subcommand.
func (e *edictCli) cmdRemove(c *cli.Context) error {
	if err := needArgs(c, 2); err != nil {
		return err
	}
	s, err := e.openStore(c)
	if err != nil {
		return err
	}
	defer s.Close()
	found, err := s.Delete(c.Args().Get(1))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %q", store.ErrNotFound, c.Args().Get(1))
	}
	return nil
}
