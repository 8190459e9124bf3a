package bounce

import "unsafe"

// uintptrAddr returns the address of a slice's backing array for page
// alignment arithmetic. The slice itself is kept alive by the Buffer that
// holds it, so this does not dangle.
func uintptrAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
