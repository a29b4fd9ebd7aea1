package sentryd

import "fmt"

// Listener is the common interface implemented by everything that owns an
// accepting socket: the DNS interceptor, the stream interceptor, and the
// admin HTTP listener. Start blocks until the listener stops, either
// because Stop was called or because it hit a fatal error.
type Listener interface {
	Start() error
	Stop() error
	fmt.Stringer
}
