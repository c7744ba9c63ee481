//go:build !darwin

package permissions

// Default reports the microphone as authorized on platforms without a
// per-app permission prompt.
func Default() Provider {
	return Static(Authorized)
}
