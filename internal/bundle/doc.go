// Package bundle copies client-side scripts that pages load at runtime
// but never reference directly, so the crawler cannot discover them.
//
// Two sources are copied: a fixed list of framework runtime files, and
// the public script trees of the components the operator selected. A
// component's dist/frontend directory is copied whole, directories
// whose name contains "js" are copied recursively, and individual *.js
// files are copied one by one. Anything whose path contains "admin" is
// skipped. Matching ignores case.
package bundle
