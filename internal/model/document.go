package model

import "encoding/json"

// Document is the typed model extracted from an ETL conventions document
type Document struct {
	Name    string   `json:"name,omitempty"` // Model variant (e.g., "pedsnet"), set by the caller
	Content string   `json:"content"`        // Free text preceding the first table
	Tables  []*Table `json:"-"`              // Tables in source order

	index map[string]*Table
}

// Table is a single table section of the document
type Table struct {
	Name    string   `json:"-"`
	Content string   `json:"content"` // Everything that isn't the field grammar
	Fields  []*Field `json:"-"`       // Fields in source order

	index map[string]*Field
}

// Field is a row of a table's field definitions
type Field struct {
	Name        string `json:"-"`
	Required    bool   `json:"required"`
	DataType    string `json:"data_type"`
	Description string `json:"description"`
	Conventions string `json:"etl_conventions"`
}

// NewDocument creates an empty document
func NewDocument() *Document {
	return &Document{index: make(map[string]*Table)}
}

// Table returns the table with the given normalized name
func (d *Document) Table(name string) (*Table, bool) {
	t, ok := d.index[name]
	return t, ok
}

// AddTable appends a new table. It returns false if the name already exists.
func (d *Document) AddTable(name string) (*Table, bool) {
	if d.index == nil {
		d.index = make(map[string]*Table)
	}
	if _, exists := d.index[name]; exists {
		return nil, false
	}

	t := &Table{Name: name, index: make(map[string]*Field)}
	d.Tables = append(d.Tables, t)
	d.index[name] = t

	return t, true
}

// Field returns the field with the given normalized name
func (t *Table) Field(name string) (*Field, bool) {
	f, ok := t.index[name]
	return f, ok
}

// AddField appends a field. It returns false if the name already exists.
func (t *Table) AddField(f *Field) bool {
	if t.index == nil {
		t.index = make(map[string]*Field)
	}
	if _, exists := t.index[f.Name]; exists {
		return false
	}

	t.Fields = append(t.Fields, f)
	t.index[f.Name] = f

	return true
}

// MarshalJSON encodes tables as an object keyed by table name, preserving source order
func (d *Document) MarshalJSON() ([]byte, error) {
	tables := make(orderedObject, 0, len(d.Tables))
	for _, t := range d.Tables {
		tables = append(tables, orderedEntry{Key: t.Name, Value: t})
	}

	return json.Marshal(struct {
		Name    string        `json:"name,omitempty"`
		Content string        `json:"content"`
		Tables  orderedObject `json:"tables"`
	}{d.Name, d.Content, tables})
}

// MarshalJSON encodes fields as an object keyed by field name, preserving source order
func (t *Table) MarshalJSON() ([]byte, error) {
	fields := make(orderedObject, 0, len(t.Fields))
	for _, f := range t.Fields {
		fields = append(fields, orderedEntry{Key: f.Name, Value: f})
	}

	return json.Marshal(struct {
		Content string        `json:"content"`
		Fields  orderedObject `json:"fields"`
	}{t.Content, fields})
}

type orderedEntry struct {
	Key   string
	Value any
}

// orderedObject is a JSON object whose keys keep insertion order
type orderedObject []orderedEntry

func (o orderedObject) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range o {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
