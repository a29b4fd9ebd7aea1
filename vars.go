package sentryd

import (
	"expvar"
	"fmt"
)

// getVarInt returns an *expvar.Int for the given path, creating it on first
// use. expvar.Publish panics on a duplicate name, so lookups go through
// expvar.Get first to make this safe to call repeatedly, e.g. every time an
// interceptor of the same id is restarted.
func getVarInt(base, id, name string) *expvar.Int {
	fullname := fmt.Sprintf("sentryd.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

func getVarString(base, id, name string) *expvar.String {
	fullname := fmt.Sprintf("sentryd.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.String)
	}
	return expvar.NewString(fullname)
}
