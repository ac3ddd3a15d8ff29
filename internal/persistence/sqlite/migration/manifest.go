package migration

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NewScript builds an UpdateScript from raw SQL text.
func NewScript(version int, name, source, query string) UpdateScript {
	stmts := SplitStatements(query)
	return UpdateScript{
		Version:    version,
		Name:       name,
		Statements: stmts,
		Source:     source,
		Checksum:   Checksum(stmts),
	}
}

// FileManifest reads scripts from a single manifest file, XML or YAML by
// extension. A missing file is an empty manifest. Consume deletes the file.
//
// XML:
//
//	<SqlUpdates>
//	  <SqlUpdate Name="add users" Version="2"><Query>CREATE TABLE ...;</Query></SqlUpdate>
//	</SqlUpdates>
//
// YAML:
//
//	updates:
//	  - version: 2
//	    name: add users
//	    query: CREATE TABLE ...;
//	  - version: 3
//	    name: seed
//	    statements: ["INSERT ...", "INSERT ..."]
type FileManifest struct {
	Path string
}

type xmlManifest struct {
	XMLName xml.Name    `xml:"SqlUpdates"`
	Updates []xmlUpdate `xml:"SqlUpdate"`
}

type xmlUpdate struct {
	Name    string `xml:"Name,attr"`
	Version int    `xml:"Version,attr"`
	Query   string `xml:"Query"`
}

type yamlManifest struct {
	Updates []yamlUpdate `yaml:"updates"`
}

type yamlUpdate struct {
	Version    int      `yaml:"version"`
	Name       string   `yaml:"name"`
	Query      string   `yaml:"query"`
	Statements []string `yaml:"statements"`
}

// Load parses the manifest file.
func (m FileManifest) Load() ([]UpdateScript, error) {
	data, err := os.ReadFile(m.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, NewFileSystemError(m.Path, "read manifest", fmt.Errorf("%w: %w", ErrManifest, err))
	}

	switch strings.ToLower(filepath.Ext(m.Path)) {
	case ".yaml", ".yml":
		return m.parseYAML(data)
	case ".xml", ".config":
		return m.parseXML(data)
	}
	// Unknown extension: sniff the content.
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
		return m.parseXML(data)
	}
	return m.parseYAML(data)
}

func (m FileManifest) parseXML(data []byte) ([]UpdateScript, error) {
	var doc xmlManifest
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, NewFileSystemError(m.Path, "parse manifest", fmt.Errorf("%w: %w", ErrManifest, err))
	}
	out := make([]UpdateScript, 0, len(doc.Updates))
	for i, u := range doc.Updates {
		out = append(out, NewScript(u.Version, u.Name, m.entrySource(i), u.Query))
	}
	return out, nil
}

func (m FileManifest) parseYAML(data []byte) ([]UpdateScript, error) {
	var doc yamlManifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewFileSystemError(m.Path, "parse manifest", fmt.Errorf("%w: %w", ErrManifest, err))
	}
	out := make([]UpdateScript, 0, len(doc.Updates))
	for i, u := range doc.Updates {
		if len(u.Statements) > 0 {
			stmts := make([]string, 0, len(u.Statements))
			for _, s := range u.Statements {
				stmts = append(stmts, SplitStatements(s)...)
			}
			out = append(out, UpdateScript{
				Version:    u.Version,
				Name:       u.Name,
				Statements: stmts,
				Source:     m.entrySource(i),
				Checksum:   Checksum(stmts),
			})
			continue
		}
		out = append(out, NewScript(u.Version, u.Name, m.entrySource(i), u.Query))
	}
	return out, nil
}

func (m FileManifest) entrySource(i int) string {
	return fmt.Sprintf("%s#%d", m.Path, i+1)
}

// Consume deletes the manifest file.
func (m FileManifest) Consume() error {
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return NewFileSystemError(m.Path, "remove manifest", err)
	}
	return nil
}

// scriptFilePattern matches {version}_{name}.sql.
var scriptFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// DirManifest reads one script per {version}_{name}.sql file in Dir. Files
// with other names are ignored. A "-- Description: ..." header comment
// overrides the name taken from the file name. Consume removes the script
// files only when Remove is set.
type DirManifest struct {
	Dir    string
	Remove bool
}

// Load scans Dir. A missing directory is an empty manifest.
func (m DirManifest) Load() ([]UpdateScript, error) {
	entries, err := os.ReadDir(m.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, NewFileSystemError(m.Dir, "read directory", fmt.Errorf("%w: %w", ErrManifest, err))
	}

	var out []UpdateScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := scriptFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, NewMigrationError(0, entry.Name(), "parse version",
				fmt.Errorf("%w: %q is not a valid version", ErrManifest, match[1]))
		}

		path := filepath.Join(m.Dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, NewFileSystemError(path, "read script", fmt.Errorf("%w: %w", ErrManifest, err))
		}

		name := descriptionOf(string(content))
		if name == "" {
			name = strings.ReplaceAll(match[2], "_", " ")
		}
		out = append(out, NewScript(version, name, path, string(content)))
	}
	return out, nil
}

// Consume removes the script files when Remove is set.
func (m DirManifest) Consume() error {
	if !m.Remove {
		return nil
	}
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return NewFileSystemError(m.Dir, "read directory", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !scriptFilePattern.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(m.Dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, NewFileSystemError(path, "remove script", err))
		}
	}
	return errors.Join(errs...)
}

// descriptionOf returns the text of a "-- Description:" line in the leading
// comment block of a script.
func descriptionOf(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			if d := strings.TrimSpace(rest); d != "" {
				return d
			}
		}
	}
	return ""
}
