// Package archive packages the Output Tree into one zip file named
// cf-static-site-<YYYYMMDD-HHMMSS>.zip.
//
// Every earlier archive in the target directory is deleted before the
// new one is written, so a completed run leaves exactly one archive.
// Entries are stored in sorted order with paths relative to the tree
// root. The archive is written under a temporary name and renamed once
// complete.
package archive
