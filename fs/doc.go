// Package fs is the file system containers and local blob stores are
// opened through. Callers can wrap [LocalFS] to observe or redirect file
// access, and tests use [FaultyFS] to inject I/O failures.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write, sync and truncate
//   - [FileSystem]: filesystem operations (open, remove, stat, mkdir)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("index.eidx", fs.Fault{FailAfterBytes: 1024})
//	// pass ffs to container.Open via container.WithFileSystem
//
// This package does not take context.Context parameters. Local file
// operations are non-interruptible at the syscall level; remote storage
// goes through blobstore, which does.
package fs
