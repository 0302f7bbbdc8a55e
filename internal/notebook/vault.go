// Package notebook provides scoped markdown I/O against a filesystem-backed
// vault: atomic file writes, deterministic YAML frontmatter, and a
// per-filename lock so concurrent writers cannot tear an append.
package notebook

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// Vault is scoped markdown storage rooted at a single directory.
type Vault struct {
	root       string
	logsFolder string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Vault rooted at cfg.VaultRoot, creating the root if it does
// not already exist. No logs subfolder is created: per-day log files are
// written directly in the root.
func New(cfg config.NotebookConfig) (*Vault, error) {
	v := &Vault{
		root:       cfg.VaultRoot,
		logsFolder: cfg.LogsFolder,
		locks:      make(map[string]*sync.Mutex),
	}
	if err := v.EnsureWritable(); err != nil {
		return nil, err
	}
	return v, nil
}

// EnsureWritable is the governance pre-check: it verifies the vault root
// exists and is writable, creating it if absent.
func (v *Vault) EnsureWritable() error {
	if err := os.MkdirAll(v.root, 0o755); err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "vault root is not writable", err)
	}
	probe := filepath.Join(v.root, ".write-probe")
	if err := os.WriteFile(probe, []byte{}, 0o644); err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "vault root is not writable", err)
	}
	_ = os.Remove(probe)
	return nil
}

func (v *Vault) pathFor(name string) string {
	return filepath.Join(v.root, filepath.Base(name))
}

func (v *Vault) lockFor(name string) *sync.Mutex {
	v.locksMu.Lock()
	defer v.locksMu.Unlock()
	l, ok := v.locks[name]
	if !ok {
		l = &sync.Mutex{}
		v.locks[name] = l
	}
	return l
}

// Write atomically replaces a file's contents, prepending frontmatter if
// given. Uses a temp file + rename so readers never observe a partial write.
func (v *Vault) Write(name string, body string, frontmatter map[string]any) error {
	lock := v.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	content := render(frontmatter, body)
	return v.atomicWrite(name, content)
}

// Append reads the current contents, concatenates body after a blank-line
// separator, and atomically rewrites the file. A missing file is treated as
// empty, so Append behaves like Write for a new name.
func (v *Vault) Append(name string, body string) error {
	lock := v.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	existing, err := os.ReadFile(v.pathFor(name))
	if err != nil && !os.IsNotExist(err) {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "reading existing file for append", err)
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if !bytes.HasSuffix(existing, []byte("\n")) {
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}
	buf.WriteString(body)

	return v.atomicWrite(name, buf.String())
}

func (v *Vault) atomicWrite(name, content string) error {
	path := v.pathFor(name)
	tmp, err := os.CreateTemp(v.root, ".tmp-*")
	if err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "writing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "closing temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "renaming temp file into place", err)
	}
	return nil
}

// Read returns the parsed frontmatter and body of a file, or NotFound.
func (v *Vault) Read(name string) (map[string]any, string, error) {
	lock := v.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(v.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", taxonomy.New(taxonomy.NotFound, fmt.Sprintf("note %q not found", name))
		}
		return nil, "", taxonomy.Wrap(taxonomy.BackendUnavailable, "reading note", err)
	}
	fm, body := parse(string(data))
	return fm, body, nil
}

// Entry describes one file in the vault, used by List and Search.
type Entry struct {
	Name    string
	ModTime time.Time
}

// List returns up to limit entries ordered by modification time.
func (v *Vault) List(limit int, order string) ([]Entry, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.BackendUnavailable, "listing vault", err)
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: e.Name(), ModTime: info.ModTime()})
	}

	newest := order != "oldest"
	sort.Slice(out, func(i, j int) bool {
		if newest {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].ModTime.Before(out[j].ModTime)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Search matches query against filenames, and against file contents too
// when searchBody is set. The content scan is bounded to the vault's current
// entries — it is not an indexed search.
func (v *Vault) Search(query string, searchBody bool) ([]Entry, error) {
	entries, err := v.List(0, "newest")
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	out := make([]Entry, 0)
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
			continue
		}
		if searchBody {
			data, err := os.ReadFile(filepath.Join(v.root, e.Name))
			if err != nil {
				continue
			}
			if strings.Contains(strings.ToLower(string(data)), q) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// LogFileName returns today's per-day log file name.
func (v *Vault) LogFileName(t time.Time) string {
	return fmt.Sprintf("Log_Global_%s.md", t.Format("2006-01-02"))
}

// LogEntry appends a formatted record block to today's log file, creating it
// (with its frontmatter) if it does not yet exist.
func (v *Vault) LogEntry(t time.Time, version string, block string) error {
	name := v.LogFileName(t)
	lock := v.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	path := v.pathFor(name)
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		frontmatter := map[string]any{
			"date":    t.Format("2006-01-02"),
			"cli":     "all-clients",
			"version": version,
		}
		content := render(frontmatter, block)
		return v.atomicWrite(name, content)
	} else if err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "stat log file", err)
	}

	existing, err := os.ReadFile(path)
	if err != nil {
		return taxonomy.Wrap(taxonomy.BackendUnavailable, "reading log file", err)
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	buf.WriteString(block)
	return v.atomicWrite(name, buf.String())
}

// render prepends a deterministic YAML-style frontmatter block (keys in
// sorted order, arrays as block lists, nested maps single-indented) to
// body. A nil/empty frontmatter yields body unchanged.
func render(frontmatter map[string]any, body string) string {
	if len(frontmatter) == 0 {
		return body
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	for _, k := range orderedKeys(frontmatter) {
		writeFrontmatterValue(&buf, k, frontmatter[k], 0)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.String()
}

// orderedKeys returns the map's keys sorted, since Go map iteration is not
// ordered and rendered frontmatter must be deterministic.
func orderedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeFrontmatterValue(buf *bytes.Buffer, key string, v any, indent int) {
	pad := strings.Repeat("  ", indent)
	switch val := v.(type) {
	case []string:
		buf.WriteString(fmt.Sprintf("%s%s:\n", pad, key))
		for _, item := range val {
			buf.WriteString(fmt.Sprintf("%s  - %s\n", pad, scalarize(item)))
		}
	case []any:
		buf.WriteString(fmt.Sprintf("%s%s:\n", pad, key))
		for _, item := range val {
			if s, ok := item.(string); ok {
				buf.WriteString(fmt.Sprintf("%s  - %s\n", pad, scalarize(s)))
			} else {
				buf.WriteString(fmt.Sprintf("%s  - %v\n", pad, item))
			}
		}
	case map[string]any:
		buf.WriteString(fmt.Sprintf("%s%s:\n", pad, key))
		for _, k := range orderedKeys(val) {
			writeFrontmatterValue(buf, k, val[k], indent+1)
		}
	case string:
		buf.WriteString(fmt.Sprintf("%s%s: %s\n", pad, key, scalarize(val)))
	default:
		buf.WriteString(fmt.Sprintf("%s%s: %v\n", pad, key, val))
	}
}

// scalarize quotes a string value when emitting it as a YAML plain scalar
// would change its type on parse (dates, booleans, numeric-looking text) —
// required for the write/read round trip to preserve string values.
func scalarize(s string) string {
	var probe any
	if err := yaml.Unmarshal([]byte(s), &probe); err == nil {
		if _, isString := probe.(string); !isString {
			b, _ := yaml.Marshal(s)
			return strings.TrimSuffix(string(b), "\n")
		}
	}
	return s
}

// parse splits a file's content into its frontmatter map and body. Files
// with no frontmatter block return a nil map and the full content as body.
// The block between the "---" fences is decoded with yaml.v3, which handles
// block lists and nested maps without a hand-rolled scanner.
func parse(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content
	}

	rest := content[4:]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if rest == "---" || strings.HasSuffix(rest, "\n---") {
			end = len(rest) - len("\n---")
		} else {
			return nil, content
		}
	}

	block := rest[:end]
	body := ""
	if consumed := end + len("\n---\n"); consumed <= len(rest) {
		body = rest[consumed:]
	}
	body = strings.TrimPrefix(body, "\n")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, content
	}
	return fm, body
}
