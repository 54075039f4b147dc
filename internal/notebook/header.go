package notebook

import (
	"errors"
	"fmt"
	"strings"

	"nbconcat/internal/concat"
)

// IPythonHeaderText makes the IPython runtime visible to the analyzer.
const IPythonHeaderText = "import IPython\nIPython.get_ipython()"

// ErrUnknownPreset reports a header preset name that is not known.
var ErrUnknownPreset = errors.New("unknown header preset")

// IPythonHeader is the header used for Jupyter notebooks.
func IPythonHeader(string) string { return IPythonHeaderText }

// LiteralHeader returns a header func producing text for every notebook.
func LiteralHeader(text string) concat.HeaderFunc {
	text = strings.TrimRight(text, "\r\n")
	return func(string) string { return text }
}

// HeaderPreset resolves a named header. The empty name means no header.
func HeaderPreset(name string) (concat.HeaderFunc, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return concat.EmptyHeader, nil
	case "ipython":
		return IPythonHeader, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}
