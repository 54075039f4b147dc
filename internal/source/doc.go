// Package source provides line indexed text buffers and the conversion
// between byte offsets and LSP positions (zero-based lines, UTF-16 columns).
package source
