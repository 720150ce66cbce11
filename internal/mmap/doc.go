// Package mmap maps workspace blobs into memory for read-only access.
//
// The local blob store uses it to serve dataset and model blobs without
// copying them through kernel buffers; pretrained vector files are several
// hundred megabytes and are read front to back exactly once.
//
//	m, err := mmap.Open("datasets/glove_6B_100d/1/glove.6B.100d.txt")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// On platforms without mmap(2) the file is read into memory instead.
package mmap
