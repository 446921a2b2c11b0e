package core

// Properties is the free-form payload attached to an analytics event.
type Properties map[string]interface{}

// Analytics is the server-side event capture client. Implementations must
// never fail the caller: capture is best-effort by contract.
type Analytics interface {
	Capture(distinctID, event string, props Properties)
	Close() error
}
