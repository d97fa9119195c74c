package syncmsg

// ContextKey names a context item. Only the case number is defined today.
type ContextKey string

const CaseNumber ContextKey = "case"

// ContextItem is one key/value unit of a shared context.
type ContextItem struct {
	Key   ContextKey `json:"key"`
	Value string     `json:"value"`
}

// Context is an ordered sequence of items. Keys are expected to be unique but
// duplicates are kept as received; Get resolves to the first occurrence.
type Context []ContextItem

// CaseContext builds a single-item context for a case number.
func CaseContext(caseNumber string) Context {
	return Context{{Key: CaseNumber, Value: caseNumber}}
}

// Get returns the value of the first item with key k.
func (c Context) Get(k ContextKey) (string, bool) {
	for _, it := range c {
		if it.Key == k {
			return it.Value, true
		}
	}
	return "", false
}

// CaseNumber returns the case identifier or "" when absent.
func (c Context) CaseNumber() string {
	v, _ := c.Get(CaseNumber)
	return v
}

// Clone returns an independent copy; nil stays nil.
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	copy(out, c)
	return out
}

// Equal compares item by item, order included.
func (c Context) Equal(o Context) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}
