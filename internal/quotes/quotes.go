package quotes

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	PhraseColumn = "frase"
	AuthorColumn = "autor"

	// Separator joins phrase and author in a formatted quote.
	Separator = " - "
)

// Quote is one (phrase, author) row of the quotes file.
type Quote struct {
	Text   string
	Author string
}

func (q Quote) String() string {
	return q.Text + Separator + q.Author
}

// Split parses a formatted quote on the last separator. A string without a
// separator is returned as text with an empty author.
func Split(s string) Quote {
	i := strings.LastIndex(s, Separator)
	if i < 0 {
		return Quote{Text: s}
	}
	return Quote{Text: s[:i], Author: s[i+len(Separator):]}
}

// DataFormatError reports a quotes file that cannot be turned into quotes.
type DataFormatError struct {
	Path string
	Err  error
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("invalid quotes file %s: %v", e.Path, e.Err)
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// Example rows written when no quotes file exists yet.
var Examples = []Quote{
	{Text: "A persistência é o caminho do êxito.", Author: "Charles Chaplin"},
	{Text: "O único lugar onde o sucesso vem antes do trabalho é no dicionário.", Author: "Albert Einstein"},
}

// LoadFile reads the quotes file at path, decoding it with the named
// encoding, and returns the formatted quotes in row order.
func LoadFile(path, encodingName string) ([]string, error) {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return nil, &DataFormatError{Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &DataFormatError{Path: path, Err: err}
	}
	defer f.Close()

	rows, err := Load(enc.NewDecoder().Reader(f))
	if err != nil {
		return nil, &DataFormatError{Path: path, Err: err}
	}

	formatted := make([]string, 0, len(rows))
	for _, q := range rows {
		formatted = append(formatted, q.String())
	}
	return formatted, nil
}

// Load parses already-decoded CSV text with a header row naming the phrase
// and author columns.
func Load(r io.Reader) ([]Quote, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	phraseIdx, authorIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case PhraseColumn:
			phraseIdx = i
		case AuthorColumn:
			authorIdx = i
		}
	}
	if phraseIdx < 0 || authorIdx < 0 {
		return nil, errors.Errorf("missing required columns %q and %q in header %v", PhraseColumn, AuthorColumn, header)
	}

	var out []Quote
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		if phraseIdx >= len(record) || authorIdx >= len(record) {
			return nil, errors.Errorf("line %d: expected at least %d fields, got %d", line, max(phraseIdx, authorIdx)+1, len(record))
		}
		out = append(out, Quote{Text: record[phraseIdx], Author: record[authorIdx]})
	}
	return out, nil
}

// WriteExample writes a header and the example rows encoded with the named
// encoding.
func WriteExample(path, encodingName string) error {
	enc, err := lookupEncoding(encodingName)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}

	w := csv.NewWriter(enc.NewEncoder().Writer(f))
	records := [][]string{{PhraseColumn, AuthorColumn}}
	for _, q := range Examples {
		records = append(records, []string{q.Text, q.Author})
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return errors.Wrap(err, "write example quotes")
	}
	return errors.WithStack(f.Close())
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %q", name)
	}
	return enc, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
