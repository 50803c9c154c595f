package templatestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"xelimit/domain/histogram"
	"xelimit/ports"
)

// containerFile is the on-disk layout of a template container.
type containerFile struct {
	Templates []templateRecord `json:"templates"`
}

type templateRecord struct {
	Name   string         `json:"name"`
	X      histogram.Axis `json:"x"`
	Y      histogram.Axis `json:"y"`
	Values []float64      `json:"values"`
}

// FileSource opens JSON template containers, zstd-compressed when the path
// ends in .zst. Opened containers are cached by absolute path so components
// sharing a file share the templates.
type FileSource struct {
	mu    sync.Mutex
	cache map[string]*MemoryStore
}

func NewFileSource() *FileSource {
	return &FileSource{cache: make(map[string]*MemoryStore)}
}

var _ ports.TemplateSource = (*FileSource)(nil)

func (s *FileSource) Open(path string) (ports.TemplateStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template path %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.cache[abs]; ok {
		return store, nil
	}

	store, err := ReadFile(abs)
	if err != nil {
		return nil, err
	}
	s.cache[abs] = store
	log.Printf("[TemplateStore] Loaded %d templates from %s", store.Len(), path)
	return store, nil
}

// ReadFile decodes one container into a MemoryStore.
func ReadFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template container: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}
	return Decode(r)
}

// Decode reads a container from r.
func Decode(r io.Reader) (*MemoryStore, error) {
	var file containerFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode template container: %w", err)
	}

	store := NewMemoryStore()
	for _, rec := range file.Templates {
		if store.Has(rec.Name) {
			return nil, fmt.Errorf("template %q defined twice in container", rec.Name)
		}
		h, err := histogram.FromValues(rec.Name, rec.X, rec.Y, rec.Values)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", rec.Name, err)
		}
		store.Put(rec.Name, h)
	}
	return store, nil
}

// Encode writes every template of store to w.
func Encode(w io.Writer, store ports.TemplateStore) error {
	file := containerFile{}
	for _, name := range store.Names() {
		h, err := store.Template(name)
		if err != nil {
			return err
		}
		file.Templates = append(file.Templates, templateRecord{
			Name:   name,
			X:      h.X,
			Y:      h.Y,
			Values: h.Values(),
		})
	}
	return json.NewEncoder(w).Encode(file)
}

// WriteFile writes a container to path, compressing when it ends in .zst.
func WriteFile(path string, store ports.TemplateStore) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create template container: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		return Encode(f, store)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := Encode(enc, store); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
