package requests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mmrzaf/tablegen/internal/domain"
	"gopkg.in/yaml.v3"
)

// Entry is a stored generation request. ID is the file name without its
// extension.
type Entry struct {
	ID      string                    `json:"id"`
	Path    string                    `json:"path"`
	Request *domain.GenerationRequest `json:"request"`
}

type Repository interface {
	List() ([]*Entry, error)
	Get(id string) (*Entry, error)
	GetByPath(path string) (*Entry, error)
}

type FileRepository struct {
	baseDir string
}

func NewFileRepository(baseDir string) *FileRepository {
	return &FileRepository{baseDir: baseDir}
}

func (r *FileRepository) List() ([]*Entry, error) {
	if _, err := os.Stat(r.baseDir); os.IsNotExist(err) {
		return []*Entry{}, nil
	}

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0)
	for _, entry := range entries {
		if entry.IsDir() || !isRequestFile(entry.Name()) {
			continue
		}
		e, err := r.load(filepath.Join(r.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get matches id against the file id first, then the configured job name.
func (r *FileRepository) Get(id string) (*Entry, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	for _, e := range entries {
		if e.Request.Config.JobName == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("request not found: %s", id)
}

// GetByPath loads a request file that must live under the base directory.
func (r *FileRepository) GetByPath(path string) (*Entry, error) {
	base, err := filepath.Abs(r.baseDir)
	if err != nil {
		return nil, err
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(base, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("request path %q escapes %s", path, r.baseDir)
	}
	return r.load(full)
}

func (r *FileRepository) load(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	req, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	name := filepath.Base(path)
	return &Entry{
		ID:      strings.TrimSuffix(name, filepath.Ext(name)),
		Path:    path,
		Request: req,
	}, nil
}

// Decode parses a request document. ext selects JSON (".json") or YAML
// (anything else); unknown JSON fields are rejected.
func Decode(data []byte, ext string) (*domain.GenerationRequest, error) {
	var req domain.GenerationRequest
	if strings.EqualFold(ext, ".json") || ext == "json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func isRequestFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
