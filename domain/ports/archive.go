package ports

import "io/fs"

// ArchiveSource opens module archives by path.
type ArchiveSource interface {
	// Open returns the archive's file tree. The caller closes the returned
	// closer once it no longer needs the contents.
	Open(path string) (ArchiveFS, error)
}

// ArchiveFS is an opened archive.
type ArchiveFS interface {
	fs.FS
	Close() error
}
