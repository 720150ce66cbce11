// Package fs provides a small filesystem abstraction for local artifacts and
// a fault injecting implementation for tests.
//
// Production code writes through [WriteAtomic] on [Default]:
//
//	err := fs.WriteAtomic(fs.Default, "outputs/model/model.h5", func(w io.Writer) error {
//		return model.Save(w, nn.CompressionZSTD)
//	})
//
// Tests wrap the local filesystem in a [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("model.h5", fs.Fault{FailAfterBytes: 1024})
//
// Rules match on substrings of the file name, so a rule for "model.h5" also
// covers the temporary sibling WriteAtomic writes to.
package fs
