package credential

import (
	"context"
	"log/slog"
)

// MaskingHandler wraps an slog.Handler and masks every string attribute
// value (recursively through slog.GroupValue) through a Store before
// delegating. This keeps masking an explicit per-logger concern rather
// than a global, per spec §9.
type MaskingHandler struct {
	next  slog.Handler
	store *Store
}

// NewMaskingHandler wraps next, masking attribute values via store.
func NewMaskingHandler(next slog.Handler, store *Store) *MaskingHandler {
	return &MaskingHandler{next: next, store: store}
}

// Enabled delegates to the wrapped handler.
func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle masks the record's message and every attribute before
// delegating to the wrapped handler.
func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	masked := record.Clone()
	masked.Message = h.store.Mask(record.Message)

	maskedAttrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		maskedAttrs = append(maskedAttrs, h.maskAttr(a))
		return true
	})

	newRecord := slog.NewRecord(record.Time, record.Level, masked.Message, record.PC)
	newRecord.AddAttrs(maskedAttrs...)

	return h.next.Handle(ctx, newRecord)
}

func (h *MaskingHandler) maskAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, "***")
		}
		return slog.String(a.Key, h.store.Mask(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, attr := range group {
			masked[i] = h.maskAttr(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	default:
		return a
	}
}

// WithAttrs wraps the delegate handler's WithAttrs, masking the
// supplied attrs up front.
func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.maskAttr(a)
	}
	return &MaskingHandler{next: h.next.WithAttrs(masked), store: h.store}
}

// WithGroup delegates to the wrapped handler.
func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name), store: h.store}
}
