package visitor

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CSV columns of the registration export.
const (
	ColName      = "Name"
	ColEmail     = "EmailID"
	ColMobile    = "Mobile"
	ColCompanion = "Column E"
	ColVisitDate = "Visit Date"
	ColInterest  = "Interest"
)

var requiredColumns = []string{ColName, ColEmail, ColMobile, ColCompanion, ColVisitDate, ColInterest}

// Options are the values every generated row shares.
type Options struct {
	Limit     int // rows to convert; 0 means all
	EventID   string
	EventName string
	Category  string
	QRColor   string
	Status    string
	CreatedAt string // timestamp literal, e.g. 2025-11-26 00:00:00+00
	NewID     func() string
}

// Visitor is one cleaned registration row.  Empty optional fields are
// written as NULL.
type Visitor struct {
	ID                string
	Name              string
	Email             string
	Phone             string
	AreaOfInterest    string
	AccompanyingCount int
	VisitDate         string
}

// FromRecord cleans one CSV record.  col maps a column name to its index.
func FromRecord(rec []string, col map[string]int, newID func() string) Visitor {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	v := Visitor{
		ID:                newID(),
		Name:              Name(get(ColName)),
		AreaOfInterest:    Interests(get(ColInterest)),
		AccompanyingCount: AccompanyingCount(get(ColCompanion)),
	}
	if e, ok := Email(get(ColEmail)); ok {
		v.Email = e
	}
	if p, ok := CleanPhone(get(ColMobile)); ok {
		v.Phone = p
	}
	if d, ok := VisitDate(get(ColVisitDate)); ok {
		v.VisitDate = d
	}
	return v
}

const insertPrefix = `INSERT INTO "public"."visitors" ("id","name","email","phone","register_number","event_id","event_name",` +
	`"visitor_category","qr_color","qr_code","purpose","area_of_interest","photo_url","accompanying_count",` +
	`"date_of_visit_from","date_of_visit_to","status","has_arrived","arrived_at","checked_in_by","created_at","updated_at") VALUES `

// Insert renders v as a single INSERT statement.
func Insert(v Visitor, opts Options) string {
	date := nullable(v.VisitDate)
	vals := []string{
		quote(v.ID),
		quote(v.Name),
		nullable(v.Email),
		nullable(v.Phone),
		"null",
		quote(opts.EventID),
		quote(opts.EventName),
		quote(opts.Category),
		quote(opts.QRColor),
		"null",
		"''",
		quote(v.AreaOfInterest),
		"null",
		quote(strconv.Itoa(v.AccompanyingCount)),
		date,
		date,
		quote(opts.Status),
		"'false'",
		"null",
		"null",
		quote(opts.CreatedAt),
		quote(opts.CreatedAt),
	}
	return insertPrefix + "(" + strings.Join(vals, ",") + ");"
}

// Convert reads a registration CSV from r and writes one INSERT per row
// to w, newline separated.  It returns the number of statements written.
func Convert(r io.Reader, w io.Writer, opts Options) (int, error) {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return 0, errors.Wrap(err, "read header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return 0, fmt.Errorf("missing column %q", name)
		}
	}

	n := 0
	for opts.Limit <= 0 || n < opts.Limit {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, errors.Wrapf(err, "read row %d", n+1)
		}
		if n > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return n, err
			}
		}
		if _, err := io.WriteString(w, Insert(FromRecord(rec, col, opts.NewID), opts)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

func nullable(s string) string {
	if s == "" {
		return "null"
	}
	return quote(s)
}
