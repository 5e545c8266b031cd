// Package sanitize deletes administrative scripts from the Output Tree
// before it is archived.
//
// Any file with a .js extension whose base name contains "admin" is
// removed, whatever put it there. The tree is walked first and the
// removal list applied afterwards, so nothing is deleted while a
// directory is being read.
package sanitize
