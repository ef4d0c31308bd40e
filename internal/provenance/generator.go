package provenance

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ppiankov/etlconv/internal/model"
)

// Default service identity
const (
	DefaultServiceID   = "pedsnet/etlconv"
	DefaultServiceName = "PEDSnet ETL Conventions Service"
)

// eventNamespace scopes the UUIDv5 identities of extraction events
var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ppiankov/etlconv/events"))

// Generator expands a parsed document and its commit into a provenance batch
type Generator struct {
	ServiceID   string
	ServiceName string
	Version     string

	// NamespaceTables qualifies table identities with the model name
	// ("pedsnet/person") so that same-named tables of different models
	// stay distinct. Off by default, which keeps bare table names.
	NamespaceTables bool
}

// NewGenerator creates a generator from configuration, falling back to the defaults
func NewGenerator(cfg model.ProvenanceConfig) *Generator {
	g := &Generator{
		ServiceID:       cfg.ServiceID,
		ServiceName:     cfg.ServiceName,
		Version:         Version(),
		NamespaceTables: cfg.NamespaceTables,
	}
	if g.ServiceID == "" {
		g.ServiceID = DefaultServiceID
	}
	if g.ServiceName == "" {
		g.ServiceName = DefaultServiceName
	}
	return g
}

// batch collects entities sharing a timestamp and batch id
type batch struct {
	domain    string
	timestamp float64
	sha       string
	entities  []model.Entity
}

func (b *batch) entity(name string, labels []string, attrs model.Attrs, refs model.Refs) model.Entity {
	return model.Entity{
		Domain:    b.domain,
		Name:      name,
		Labels:    model.LabelSet(labels...),
		Attrs:     attrs,
		Refs:      refs,
		Timestamp: b.timestamp,
		Batch:     b.sha,
	}
}

func (b *batch) add(name string, labels []string, attrs model.Attrs, refs model.Refs) model.Entity {
	e := b.entity(name, labels, attrs, refs)
	b.entities = append(b.entities, e)
	return e
}

func (b *batch) person(s model.Signature) model.Entity {
	return b.entity(s.Email, []string{model.LabelPerson, model.LabelAgent}, model.Attrs{
		"name":  model.String(s.Name),
		"email": model.String(s.Email),
		"date":  model.String(s.Date),
	}, nil)
}

// Generate produces the entity batch for doc as of commit. The output is a
// pure function of its inputs: the same arguments yield the same identities.
func (g *Generator) Generate(fileName, domain string, doc *model.Document, commit model.Commit) ([]model.Entity, error) {
	if doc == nil {
		return nil, errors.New("generate provenance: nil document")
	}

	// An unparseable date leaves the timestamp at zero, which validation rejects
	timestamp, _ := ParseDate(commit.Committer.Date)

	b := &batch{domain: domain, timestamp: timestamp, sha: commit.SHA}

	// Committer and author may be the same person; both are kept
	committer := b.person(commit.Committer)
	author := b.person(commit.Author)

	commitEntity := b.entity(commit.SHA, []string{model.LabelCommit}, model.Attrs{
		"sha":         model.String(commit.SHA),
		"url":         model.String(commit.URL),
		"message":     model.String(commit.Message),
		"commit_time": model.String(commit.Committer.Date),
		"author_time": model.String(commit.Author.Date),
	}, model.Refs{
		"committer": committer.Ident(),
		"author":    author.Ident(),
	})

	sourceFile := b.entity(fileName, []string{model.LabelFile}, model.Attrs{
		"path": model.String(fileName),
	}, model.Refs{
		"commit": commitEntity.Ident(),
	})

	service := b.entity(g.ServiceID, []string{model.LabelAgent, model.LabelService}, model.Attrs{
		"name":    model.String(g.ServiceName),
		"version": model.String(g.Version),
	}, nil)

	b.entities = append(b.entities, service, sourceFile, commitEntity, author, committer)

	extracted := func(target model.Entity) {
		b.add(eventName(commit.SHA, target), []string{model.LabelEvent, model.LabelEntitiesExtracted},
			model.Attrs{"event": model.String(model.LabelEntitiesExtracted)},
			model.Refs{
				"file":    sourceFile.Ident(),
				"service": service.Ident(),
				"entity":  target.Ident(),
			})
	}

	modelEntity := b.add(doc.Name, []string{model.LabelModel}, model.Attrs{
		"name":    model.String(doc.Name),
		"content": model.String(doc.Content),
	}, nil)
	extracted(modelEntity)

	for _, table := range doc.Tables {
		tableID := table.Name
		if g.NamespaceTables {
			tableID = doc.Name + "/" + table.Name
		}

		tableEntity := b.add(tableID, []string{model.LabelTable}, model.Attrs{
			"name":    model.String(table.Name),
			"content": model.String(table.Content),
		}, model.Refs{
			"model": modelEntity.Ident(),
		})
		extracted(tableEntity)

		for _, field := range table.Fields {
			fieldEntity := b.add(tableID+"."+field.Name, []string{model.LabelField}, model.Attrs{
				"name":            model.String(field.Name),
				"required":        model.Bool(field.Required),
				"data_type":       model.String(field.DataType),
				"description":     model.String(field.Description),
				"etl_conventions": model.String(field.Conventions),
			}, model.Refs{
				"table": tableEntity.Ident(),
				"model": modelEntity.Ident(),
			})
			extracted(fieldEntity)
		}
	}

	for _, e := range b.entities {
		if err := Validate(e); err != nil {
			return nil, fmt.Errorf("generate provenance: %w", err)
		}
	}

	return b.entities, nil
}

// eventName derives the extraction event identity from the commit and the target entity
func eventName(sha string, target model.Entity) string {
	id := uuid.NewSHA1(eventNamespace, []byte(sha+"|"+target.Domain+"|"+target.Name))
	return "event_" + id.String()
}
