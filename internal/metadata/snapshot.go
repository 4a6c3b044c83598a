package metadata

// Snapshot is an immutable, point-in-time view of one user's attributes.
// It is the only input condition evaluation ever sees; elapsed-time
// attributes are computed once by the context provider when the snapshot
// is built, so evaluation itself never reads the clock.
type Snapshot struct {
	UserID string
	Attrs  map[string]any
}

// Attr returns a raw attribute by its storage name.
func (s Snapshot) Attr(name string) (any, bool) {
	v, ok := s.Attrs[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

type fieldAccessor func(Snapshot) (any, bool)

// fieldAccessors maps the symbolic field names condition authors use to
// snapshot attributes. The dictionary keeps the set of known fields
// auditable while the raw-attribute fallback in ResolveField lets new
// attributes be referenced before an accessor is registered.
var fieldAccessors = map[string]fieldAccessor{
	"credits_balance":             attr("credits"),
	"total_generations":           attr("generations_total"),
	"total_payments":              attr("payments_total"),
	"last_payment_failed":         attr("last_payment_failed"),
	"hours_since_created":         attr("hours_since_created"),
	"days_since_created":          attr("days_since_created"),
	"hours_since_last_activity":   attr("hours_since_last_activity"),
	"hours_since_last_generation": attr("hours_since_last_generation"),
	"hours_since_last_payment":    attr("hours_since_last_payment"),
	"user_tags":                   attr("tags"),
}

func attr(name string) fieldAccessor {
	return func(s Snapshot) (any, bool) {
		return s.Attr(name)
	}
}

// ResolveField resolves a condition's symbolic field name against the
// snapshot. When the registered accessor finds nothing, and for
// unrecognized names, resolution falls back to a direct attribute
// lookup under the symbolic name itself. The fallback is what lets
// hand-built simulation contexts use the symbolic names directly.
func ResolveField(name string, s Snapshot) (any, bool) {
	if accessor, ok := fieldAccessors[name]; ok {
		if v, present := accessor(s); present {
			return v, true
		}
	}
	return s.Attr(name)
}

// KnownField reports whether name has a registered accessor.
func KnownField(name string) bool {
	_, ok := fieldAccessors[name]
	return ok
}
