package extract

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ppiankov/etlconv/internal/model"
)

var (
	titleRe     = regexp.MustCompile(`^#[^#]+`)
	tableNameRe = regexp.MustCompile(`^##\s*\d+\.\d+(?P<name>[ \w]*)`)
)

const maxLineBytes = 1 << 20

type state int

const (
	stateSkipToTitle state = iota
	stateCollectPreamble
	stateExpectTableHeader
	stateCollectFieldRows
	stateCollectTrailer
)

// Parser turns an ETL conventions document into a model.Document
type Parser struct {
	r        io.Reader
	registry *Registry
	logger   *slog.Logger

	parsed bool
	doc    *model.Document
	err    error
}

// Option configures a Parser
type Option func(*Parser)

// WithRegistry overrides the table grammars
func WithRegistry(r *Registry) Option {
	return func(p *Parser) { p.registry = r }
}

// WithLogger sets the debug logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a parser over the given reader
func NewParser(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		r:        r,
		registry: NewRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse is a convenience for NewParser(r).Parse()
func Parse(r io.Reader, opts ...Option) (*model.Document, error) {
	return NewParser(r, opts...).Parse()
}

// ParseString parses a document held in memory
func ParseString(text string, opts ...Option) (*model.Document, error) {
	return Parse(strings.NewReader(text), opts...)
}

// Parse scans the document. Subsequent calls return the cached result.
func (p *Parser) Parse() (*model.Document, error) {
	if p.parsed {
		return p.doc, p.err
	}

	p.doc, p.err = p.run()
	p.parsed = true

	return p.doc, p.err
}

// tableBuilder accumulates the content of the table being parsed
type tableBuilder struct {
	table   *model.Table
	grammar Grammar
	content []string
}

func (p *Parser) run() (*model.Document, error) {
	doc := model.NewDocument()
	lines := newLineReader(p.r)

	var (
		st       = stateSkipToTitle
		preamble []string
		current  *tableBuilder
	)

	finish := func() {
		if current == nil {
			return
		}
		current.table.Content = joinTrimmed(current.content)
		p.logger.Debug("[parser] added table content", "table", current.table.Name)
		current = nil
	}

	start := func(line string) error {
		finish()

		name := tableName(line)
		if name == "" {
			p.logger.Warn("[parser] table marker has no name", "line", lines.n, "marker", line)
		}
		t, ok := doc.AddTable(name)
		if !ok {
			return &ParseError{Line: lines.n, Err: &DuplicateTableError{Table: name}}
		}

		p.logger.Debug("[parser] added table", "table", name)
		current = &tableBuilder{table: t}
		st = stateExpectTableHeader
		return nil
	}

	for {
		line, ok := lines.next()
		if !ok {
			break
		}

		switch st {
		case stateSkipToTitle:
			// Everything up to and including the title line is skipped
			if titleRe.MatchString(line) {
				st = stateCollectPreamble
			}

		case stateCollectPreamble:
			if tableNameRe.MatchString(line) {
				p.logger.Debug("[parser] found table name", "line", line)
				doc.Content = joinTrimmed(preamble)
				p.logger.Debug("[parser] added top-level content")
				if err := start(line); err != nil {
					return nil, err
				}
				continue
			}
			preamble = append(preamble, line)

		case stateExpectTableHeader:
			if tableNameRe.MatchString(line) {
				if err := start(line); err != nil {
					return nil, err
				}
				continue
			}
			if g := p.registry.MatchHeader(line); g != nil {
				p.logger.Debug("[parser] matched header", "table", current.table.Name, "grammar", g.Name())
				current.grammar = g
				// The separator row under the header is never a field
				lines.next()
				st = stateCollectFieldRows
				continue
			}
			current.content = append(current.content, line)

		case stateCollectFieldRows:
			field, ok := current.grammar.ParseRow(line)
			if !ok {
				lines.unread(line)
				st = stateCollectTrailer
				continue
			}
			if !current.table.AddField(field) {
				return nil, &ParseError{Line: lines.n, Err: &DuplicateFieldError{Table: current.table.Name, Field: field.Name}}
			}
			p.logger.Debug("[parser] added field", "table", current.table.Name, "field", field.Name)

		case stateCollectTrailer:
			if tableNameRe.MatchString(line) {
				if err := start(line); err != nil {
					return nil, err
				}
				continue
			}
			current.content = append(current.content, line)
		}
	}

	if err := lines.err(); err != nil {
		return nil, &ParseError{Line: lines.n, Err: fmt.Errorf("read line: %w", err)}
	}

	if st == stateCollectPreamble {
		doc.Content = joinTrimmed(preamble)
	}
	finish()

	return doc, nil
}

// tableName normalizes a table marker line such as "## 1.1 PERSON" to "person"
func tableName(line string) string {
	m := tableNameRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(strings.ToLower(m[tableNameRe.SubexpIndex("name")]))
	return strings.ReplaceAll(name, " ", "_")
}

func joinTrimmed(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// lineReader yields lines one at a time and supports pushing one line back
type lineReader struct {
	scanner *bufio.Scanner
	pending *string
	n       int
}

func newLineReader(r io.Reader) *lineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	s.Split(scanLines)
	return &lineReader{scanner: s}
}

func (l *lineReader) next() (string, bool) {
	if l.pending != nil {
		line := *l.pending
		l.pending = nil
		return line, true
	}
	if !l.scanner.Scan() {
		return "", false
	}
	l.n++
	return l.scanner.Text(), true
}

func (l *lineReader) unread(line string) {
	l.pending = &line
}

func (l *lineReader) err() error {
	return l.scanner.Err()
}

// scanLines splits on \n, \r\n and bare \r
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF {
			// A trailing \r may be the first half of \r\n
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
