// dbinspect prints the content of a pinphotos data store without modifying it
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"text/tabwriter"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/kleinnic74/pinphotos/library"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"
)

var (
	dbName = "pinphotos.db"

	libDir string

	bucket     string
	printKey   bool
	printValue bool
	keyFilter  string
	pin        string

	keyAcceptor = func(string) bool { return true }

	commands = []command{
		{"buckets", listBuckets, func() *flag.FlagSet { return nil }},
		{"pins", listPins, func() *flag.FlagSet { return nil }},
		{"photos", listPhotos, func() *flag.FlagSet {
			flags := flag.NewFlagSet("photos", flag.ExitOnError)
			flags.StringVar(&pin, "pin", "", "Only photos of this pin")
			return flags
		}},
		{"entries", listEntries, func() *flag.FlagSet {
			flags := flag.NewFlagSet("entries", flag.ExitOnError)
			flags.StringVar(&bucket, "b", "pins", "Bucket to inspect")
			flags.BoolVar(&printKey, "k", false, "Output keys")
			flags.BoolVar(&printValue, "v", false, "Output value")
			flags.StringVar(&keyFilter, "kf", "", "Key regex filter")
			return flags
		}},
	}
)

type cmdFunc func(io.Writer, *boltstore.BoltStore) error

type flagSetFunc func() *flag.FlagSet

type command struct {
	name  string
	run   cmdFunc
	flags flagSetFunc
}

func getCommand(args []string) (command, error) {
	if len(args) == 0 {
		return commands[0], nil
	}
	for i := range commands {
		if args[0] == commands[i].name {
			return commands[i], nil
		}
	}
	return command{}, fmt.Errorf("No such command: %s", args[0])
}

func listBuckets(out io.Writer, store *boltstore.BoltStore) error {
	sizes, err := store.BucketSizes()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, sizes[name])
	}
	return w.Flush()
}

func listPins(out io.Writer, store *boltstore.BoltStore) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	err := store.View(context.Background(), func(tx library.Tx) error {
		pins, err := tx.ListPins()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "ID\tLAT\tLON\tCREATED\tPHOTOS")
		for _, p := range pins {
			count, err := tx.CountPhotos(p.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%s\t%d\n", p.ID, p.Lat, p.Lon, p.Created.Format("2006-01-02 15:04:05"), count)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

func listPhotos(out io.Writer, store *boltstore.BoltStore) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	err := store.View(context.Background(), func(tx library.Tx) error {
		photos, err := tx.FindPhotos(library.PhotoFilter{Pin: library.PinID(pin)})
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PIN\tPOS\tID\tSIZE\tTYPE\tURL")
		for _, p := range photos {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n", p.Pin, p.Position, p.ID, p.Size, p.ContentType, p.URL)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

type stats struct {
	count      int
	badKeys    int
	zeroValues int
}

func (s stats) Add(sub stats) (out stats) {
	out.badKeys = s.badKeys + sub.badKeys
	out.count = s.count + sub.count
	out.zeroValues = s.zeroValues + sub.zeroValues
	return
}

func listEntries(out io.Writer, store *boltstore.BoltStore) error {
	if keyFilter != "" {
		keyRE, err := regexp.Compile(keyFilter)
		if err != nil {
			return fmt.Errorf("Bad key filter RE: %w", err)
		}
		keyAcceptor = keyRE.MatchString
	}
	return store.DB().View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("No such bucket: %s", bucket)
		}
		s, err := walkBucket(out, b)
		fmt.Fprintf(out, "  %d entries\n", s.count)
		fmt.Fprintf(out, "  %d bad keys\n", s.badKeys)
		fmt.Fprintf(out, "  %d zero values\n", s.zeroValues)
		return err
	})
}

func walkBucket(out io.Writer, b *bolt.Bucket) (s stats, err error) {
	err = b.ForEach(func(k, v []byte) error {
		if !keyAcceptor(fmt.Sprintf("%x", k)) && !keyAcceptor(string(k)) {
			return nil
		}
		if v == nil {
			// nested bucket
			subStats, err := walkBucket(out, b.Bucket(k))
			if err != nil {
				return err
			}
			s = s.Add(subStats)
		}
		s.count++
		if len(k) == 0 {
			s.badKeys++
		}
		if v != nil && len(v) == 0 {
			s.zeroValues++
		}
		sep := ""
		if printKey {
			fmt.Fprintf(out, "%q", k)
			sep = ":"
		}
		if printValue && v != nil {
			fmt.Fprintf(out, "%s%s", sep, v)
		}
		if printKey || printValue {
			fmt.Fprintln(out)
		}
		return nil
	})
	return
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [command] [command options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "[command] is one of\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "\t%s\n", c.name)
		}
		flag.PrintDefaults()
	}
	flag.StringVar(&libDir, "l", "pinphotos", "Path to the library directory")
	flag.Parse()

	exe, err := getCommand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		flag.Usage()
		os.Exit(1)
	}
	if flags := exe.flags(); flags != nil && flag.NArg() > 1 {
		flags.Parse(flag.Args()[1:])
	}

	dbPath := filepath.Join(libDir, dbName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open Bolt DB at %s: %s\n", dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := boltstore.NewReadOnlyStore(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Not a pinphotos store: %s\n", err)
		os.Exit(1)
	}
	if err := exe.run(os.Stdout, store); err != nil {
		fmt.Fprintf(os.Stderr, "Error while executing: %s\n", err)
		os.Exit(1)
	}
}
