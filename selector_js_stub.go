//go:build !js_eval

package reactive

// NewJSEngine is unavailable without the js_eval build tag and returns nil.
func NewJSEngine(opts ...JSOption) Engine {
	_ = newJSEngineConfig(opts)
	return nil
}

func jsEngineAvailable() bool {
	return false
}
