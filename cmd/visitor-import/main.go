// visitor-import converts an open-day registration CSV into INSERT
// statements for the visitors table, so a registration export can be
// loaded before the gates open.
//
//	visitor-import --in registrations.csv --out visitors.sql \
//	    --event-id 65fe748f-4b3b-4eab-8b3f-b8215b2a6b5c --event-name "OPEN DAY 1"
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/campus-gate/internal/visitor"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		in, out string
		opts    visitor.Options
	)
	fs := pflag.NewFlagSet("visitor-import", pflag.ContinueOnError)
	fs.StringVar(&in, "in", "", "registration CSV to read (required)")
	fs.StringVarP(&out, "out", "o", "", "SQL file to write (default: stdout)")
	fs.IntVar(&opts.Limit, "limit", 100, "maximum rows to convert; 0 converts all")
	fs.StringVar(&opts.EventID, "event-id", "", "event UUID stored on every visitor (required)")
	fs.StringVar(&opts.EventName, "event-name", "", "event name stored on every visitor (required)")
	fs.StringVar(&opts.Category, "category", "student", "visitor_category value")
	fs.StringVar(&opts.QRColor, "qr-color", "blue", "qr_color value")
	fs.StringVar(&opts.Status, "status", "approved", "status value")
	fs.StringVar(&opts.CreatedAt, "created-at", "", "created_at/updated_at timestamp (default: now, UTC)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" || opts.EventID == "" || opts.EventName == "" {
		fs.Usage()
		return fmt.Errorf("--in, --event-id and --event-name are required")
	}
	if opts.CreatedAt == "" {
		opts.CreatedAt = time.Now().UTC().Format("2006-01-02 15:04:05+00")
	}

	src, err := os.Open(in)
	if err != nil {
		return err
	}
	defer src.Close()

	dst := os.Stdout
	if out != "" {
		if dst, err = os.Create(out); err != nil {
			return err
		}
		defer dst.Close()
	}
	w := bufio.NewWriter(dst)
	n, err := visitor.Convert(src, w, opts)
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "generated %d INSERT statements\n", n)
	return nil
}
