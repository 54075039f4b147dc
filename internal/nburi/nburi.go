// Package nburi classifies notebook, cell and interactive-window URIs.
package nburi

import (
	"net/url"
	"path"
	"strings"
)

const (
	NotebookScheme         = "vscode-notebook"
	NotebookCellScheme     = "vscode-notebook-cell"
	InteractiveInputScheme = "vscode-interactive-input"
	InteractiveScheme      = "vscode-interactive"
	PythonLanguage         = "python"
)

func parse(uri string) *url.URL {
	u, err := url.Parse(uri)
	if err != nil {
		return &url.URL{Path: uri}
	}
	return u
}

// IsNotebookCell reports whether uri addresses a notebook cell or the
// interactive input box.
func IsNotebookCell(uri string) bool {
	u := parse(uri)
	return strings.Contains(u.Scheme, NotebookCellScheme) || strings.Contains(u.Scheme, InteractiveInputScheme)
}

// IsInteractiveCell reports whether uri belongs to an interactive window.
func IsInteractiveCell(uri string) bool {
	u := parse(uri)
	return strings.Contains(u.Fragment, InteractiveScheme) ||
		strings.HasSuffix(u.Path, ".interactive") ||
		strings.Contains(u.Scheme, InteractiveInputScheme) ||
		strings.Contains(u.Scheme, InteractiveScheme)
}

// IsInputCell reports whether uri is the interactive window input box.
func IsInputCell(uri string) bool {
	return strings.Contains(parse(uri).Scheme, InteractiveInputScheme)
}

// NotebookKey identifies the notebook a cell belongs to. Cells of one
// notebook share the path and differ in fragment. The interactive input box
// either shares the path of its window or is named InteractiveInput-N for
// the window Interactive-N.interactive.
func NotebookKey(uri string) string {
	u := parse(uri)
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if strings.Contains(u.Scheme, InteractiveInputScheme) {
		p = windowOfInput(p)
	}
	return p
}

const inputPrefix = "InteractiveInput-"

// windowOfInput maps dir/InteractiveInput-N to dir/Interactive-N.interactive.
func windowOfInput(p string) string {
	dir, base := path.Split(p)
	n, ok := strings.CutPrefix(base, inputPrefix)
	if !ok || n == "" || strings.Trim(n, "0123456789") != "" {
		return p
	}
	return dir + "Interactive-" + n + ".interactive"
}

// ConcatURI returns the URI of the synthetic document standing in for the
// notebook identified by key.
func ConcatURI(key string) string {
	dir, base := path.Split(key)
	if dir == "" {
		dir = "/"
	}
	name := strings.TrimSuffix(base, path.Ext(base))
	if name == "" {
		name = "notebook"
	}
	u := url.URL{Scheme: "file", Path: path.Join(dir, "_NotebookConcat_"+name+".py")}
	return u.String()
}
