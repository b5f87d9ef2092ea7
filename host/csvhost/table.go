// Package csvhost presents the columns of a CSV file as a field container, so
// the widget can choose and order the columns that get printed.
//
// Header cells are either a key ("region") or a key and a label
// ("region=Sales region"). Each cell becomes a node; the node order and
// hidden flags set by the widget decide what Render prints.
package csvhost

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sardine-ai/fieldview/view"
	"github.com/sirupsen/logrus"
)

type column struct {
	cell  string
	index int
	node  *view.Element
}

// Table is an observable container over the header of a CSV file.
type Table struct {
	*view.List

	path string
	mu   sync.Mutex
	cols []column
	log  *logrus.Entry
}

// Open reads the header of the CSV file at path.
func Open(path string) (*Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", path)
	}
	t := &Table{
		List: view.NewList(),
		path: abs,
		log:  logrus.WithFields(logrus.Fields{"component": "csvhost", "path": abs}),
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Path returns the absolute path of the file.
func (t *Table) Path() string {
	return t.path
}

// Reload re-reads the header and updates the nodes: columns that disappeared
// are removed, new ones are appended. Nodes for unchanged header cells are
// kept with their position and hidden flag.
func (t *Table) Reload() error {
	header, err := readHeader(t.path)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Repeated header cells are matched in order.
	existing := make(map[string][]column, len(t.cols))
	for _, c := range t.cols {
		existing[c.cell] = append(existing[c.cell], c)
	}
	next := make([]column, 0, len(header))
	var added []*view.Element
	for i, cell := range header {
		if cs := existing[cell]; len(cs) > 0 {
			c := cs[0]
			existing[cell] = cs[1:]
			c.index = i
			next = append(next, c)
			continue
		}
		key, label := splitCell(cell)
		el := view.NewElement(key, label)
		next = append(next, column{cell: cell, index: i, node: el})
		added = append(added, el)
	}
	t.cols = next

	removed := 0
	for _, cs := range existing {
		for _, c := range cs {
			t.List.Remove(c.node)
			removed++
		}
	}
	for _, el := range added {
		t.List.Append(el)
	}
	if removed > 0 || len(added) > 0 {
		t.log.WithFields(logrus.Fields{"added": len(added), "removed": removed}).Debug("header changed")
	}
	return nil
}

// Render writes the file to w with only the shown columns, in container
// order. The header row is written as found in the file.
func (t *Table) Render(w io.Writer) error {
	f, err := os.Open(t.path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", t.path)
	}
	defer f.Close()

	indexes := t.shownColumns()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	out := csv.NewWriter(w)
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", t.path)
		}
		row := make([]string, len(indexes))
		for i, idx := range indexes {
			if idx < len(record) {
				row[i] = record[idx]
			}
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func (t *Table) shownColumns() []int {
	t.mu.Lock()
	byNode := make(map[view.Node]int, len(t.cols))
	for _, c := range t.cols {
		byNode[c.node] = c.index
	}
	t.mu.Unlock()

	var out []int
	for _, n := range t.List.Children() {
		idx, ok := byNode[n]
		if !ok || n.Hidden() {
			continue
		}
		out = append(out, idx)
	}
	return out
}

func splitCell(cell string) (key, label string) {
	key, label, _ = strings.Cut(cell, "=")
	return strings.TrimSpace(key), strings.TrimSpace(label)
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}
	// A UTF-8 byte order mark would otherwise end up in the first key.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}
