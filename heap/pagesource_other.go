//go:build !unix

package heap

// OSPageSource returns the default page source for this platform.
func OSPageSource() PageSource { return goSource{} }
