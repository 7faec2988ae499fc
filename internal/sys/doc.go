// Package sys defines the kernel ABI vocabulary shared by every layer of the
// fiber kernel: status codes, rights, object types, signals, koids, handle
// values and the fixed-layout structures returned by object info queries.
//
// Status codes implement error so kernel entry points can return them
// directly:
//
//	if err := k.HandleClose(ctx, h); errors.Is(err, sys.ErrBadHandle) {
//		...
//	}
//
// The numeric values are part of the ABI and never change.
package sys
