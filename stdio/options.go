package stdio

import (
	"io"
	"log/slog"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO replaces stdin and stdout. A nil side keeps its default, so tests
// can swap only the input.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(h *Handler) {
		if in != nil {
			h.r = in
		}
		if out != nil {
			h.w = out
		}
	}
}

// WithLogger sets the logger. Logs must never share the output stream.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}
