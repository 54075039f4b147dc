package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nbconcat/internal/concat"
	"nbconcat/internal/nburi"
	"nbconcat/internal/protocol"
)

// ErrNotNotebook reports a file that is not a Jupyter notebook.
var ErrNotNotebook = errors.New("not a notebook document")

type ipynbFile struct {
	Cells    []ipynbCell `json:"cells"`
	Metadata struct {
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
		Kernelspec struct {
			Language string `json:"language"`
		} `json:"kernelspec"`
	} `json:"metadata"`
	NBFormat int `json:"nbformat"`
}

type ipynbCell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

// source accepts both encodings of a cell body: one string, or a list of
// lines that keep their terminators.
func (c ipynbCell) source() (string, error) {
	if len(c.Source) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(c.Source, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(c.Source, &lines); err != nil {
		return "", fmt.Errorf("cell source: %w", err)
	}
	return strings.Join(lines, ""), nil
}

// CellURI names cell idx of the notebook stored at path.
func CellURI(path string, idx int) string {
	return fmt.Sprintf("%s:%s#cell%d", nburi.NotebookCellScheme, filepath.ToSlash(path), idx)
}

// ReadIPynb decodes a notebook and returns one open item per cell, in
// order. Code cells take the kernel language; other cells keep their
// cell type as language so that documents ignore them.
func ReadIPynb(r io.Reader, path string) ([]protocol.TextDocumentItem, error) {
	var nb ipynbFile
	if err := json.NewDecoder(r).Decode(&nb); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrNotNotebook, err)
	}
	if nb.NBFormat < 4 {
		return nil, fmt.Errorf("%s: %w: nbformat %d is not supported", path, ErrNotNotebook, nb.NBFormat)
	}
	lang := nb.Metadata.LanguageInfo.Name
	if lang == "" {
		lang = nb.Metadata.Kernelspec.Language
	}
	if lang == "" {
		lang = nburi.PythonLanguage
	}
	items := make([]protocol.TextDocumentItem, 0, len(nb.Cells))
	for i, c := range nb.Cells {
		text, err := c.source()
		if err != nil {
			return nil, fmt.Errorf("%s: cell %d: %w", path, i, err)
		}
		cellLang := lang
		if c.CellType != "code" {
			cellLang = c.CellType
		}
		items = append(items, protocol.TextDocumentItem{
			URI:        CellURI(path, i),
			LanguageID: cellLang,
			Version:    1,
			Text:       text,
		})
	}
	return items, nil
}

// LoadIPynb reads the notebook at path and opens every cell in a fresh
// converter. It returns the converter and the notebook key.
func LoadIPynb(path string, opts Options) (*Converter, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	// #nosec G304 -- path is provided by the caller
	f, err := os.Open(abs)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	items, err := ReadIPynb(f, abs)
	if err != nil {
		return nil, "", err
	}
	conv := NewConverter(opts)
	for _, item := range items {
		conv.Handle(concat.OpenEvent{TextDocument: item})
	}
	return conv, nburi.NotebookKey(CellURI(abs, 0)), nil
}
