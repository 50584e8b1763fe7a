// Package storage persists uploaded files to remote servers and manages the
// local staging cache that uploads pass through on their way there.
//
// # Overview
//
// A Backend pairs an Uploader (which decides where files live) with a Dialer
// (which knows how to reach a remote server). It hands out File handles:
//
//	backend, err := ftp.New(uploader, ftp.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	cached, err := backend.Cache(storage.NewLocalFile(nil, "/tmp/upload.png"))
//	if err != nil {
//	    return err
//	}
//
//	file, err := backend.Store(ctx, cached)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(file.URL())
//
// A File never holds a live connection. Every network operation dials a new
// Session, uses it and closes it before returning, on success, failure or
// panic alike.
//
// # Transports
//
// A transport is anything that implements Dialer and Session. The ftp, sftp
// and s3 packages provide the built-in ones. Sessions may additionally
// implement DirChanger, in which case File changes into the parent directory
// and addresses the target by its bare filename, and Chmoder, which is used
// to apply the uploader's permissions after a store when the backend was
// built WithChmod(true).
//
// # Staging Cache
//
// Cache moves a freshly uploaded local file into the uploader's cache
// directory. Entries under that directory are named
// TIMESTAMP-PID-COUNTER-RAND (see NewCacheID). When the move fails because
// the disk is full (ENOSPC) or the directory link limit was hit (EMLINK), the
// backend sweeps entries older than ten minutes and retries the move once.
// That retry is spent for the lifetime of the Backend.
//
// CleanCache can also be called directly:
//
//	// Remove staging entries older than one hour
//	err := backend.CleanCache(time.Hour)
package storage
