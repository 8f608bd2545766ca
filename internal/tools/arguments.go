package tools

// Arguments are the decoded tools/call arguments. Numbers decode as float64.
type Arguments map[string]any

// String returns the named argument as a string, or "" if absent or not a string.
func (a Arguments) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Number returns the named argument as a float64, or 0 if absent or not a number.
func (a Arguments) Number(name string) float64 {
	f, _ := a[name].(float64)
	return f
}
