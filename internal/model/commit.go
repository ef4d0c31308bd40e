package model

// Commit is a revision of a tracked file in the source repository
type Commit struct {
	SHA       string    `json:"sha"`
	Message   string    `json:"message"`
	URL       string    `json:"url"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
	FilePath  string    `json:"file_path,omitempty"`
	Timestamp float64   `json:"timestamp,omitempty"` // Parsed committer date, seconds since the epoch
}

// Signature identifies a person and the time they acted on a commit
type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// CommitRef is the short commit summary returned alongside an extraction
type CommitRef struct {
	SHA  string `json:"sha"`
	Date string `json:"date"`
}

// TrackedDocument is an ETL conventions document followed by the service
type TrackedDocument struct {
	Name    string `yaml:"name" mapstructure:"name" json:"name"`          // Model name (e.g., "pedsnet")
	Version string `yaml:"version" mapstructure:"version" json:"version"` // Model version (e.g., "2.0.0")
	Path    string `yaml:"path" mapstructure:"path" json:"path"`          // File path within the repository
}

// ID returns the document identifier used on the command line
func (d TrackedDocument) ID() string {
	if d.Version == "" {
		return d.Name
	}
	return d.Name + "/" + d.Version
}
