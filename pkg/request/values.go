package request

// Values holds the parameter values received for a single dispatch.
type Values struct {
	raw      map[string]string
	filtered map[string]string
}

func newValues(n int) *Values {
	return &Values{
		raw:      make(map[string]string, n),
		filtered: make(map[string]string, n),
	}
}

// NewValues builds values from already filtered name/value pairs, for callers
// that address an action outside of a dispatch (URL building, cache resets).
func NewValues(filtered map[string]string) *Values {
	v := newValues(len(filtered))
	for k, val := range filtered {
		v.set(k, val, val)
	}
	return v
}

func (v *Values) set(name, raw, filtered string) {
	v.raw[name] = raw
	v.filtered[name] = filtered
}

// IsReceived returns true if a value for name was present in the request.
func (v *Values) IsReceived(name string) bool {
	if v == nil {
		return false
	}
	_, ok := v.raw[name]
	return ok
}

// Raw returns the unfiltered value as received.
func (v *Values) Raw(name string) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.raw[name]
	return s, ok
}

// Get returns the filtered value, or "" when it was not received.
func (v *Values) Get(name string) string {
	if v == nil {
		return ""
	}
	return v.filtered[name]
}

// Map returns a copy of the filtered values that were received.
func (v *Values) Map() map[string]string {
	out := make(map[string]string)
	if v == nil {
		return out
	}
	for k, val := range v.filtered {
		out[k] = val
	}
	return out
}
