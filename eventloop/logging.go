package eventloop

import (
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/joeycumines/logiface"
)

// faultFields adds the standard fault fields to a log event. Safe to call
// with a nil (disabled) builder.
func faultFields(b *logiface.Builder[logiface.Event], f *fault.Fault) *logiface.Builder[logiface.Event] {
	if !b.Enabled() {
		return b
	}
	b = b.Err(f).
		Str("kind", f.Kind().String()).
		Str("name", f.Name())
	if f != nil && f.Resource != "" {
		b = b.Str("resource", f.Resource)
	}
	if f != nil && f.Position >= 0 {
		b = b.Int("position", f.Position)
	}
	return b
}
