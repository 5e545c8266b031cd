// Package mirror copies the binary assets referenced by crawled pages
// into the Output Tree.
//
// Only same-origin references under the content categories (by default
// wp-content/uploads, wp-content/themes and wp-content/plugins) are
// mirrored. Assets are write-once: a file that already exists is never
// fetched again, so repeated runs leave earlier downloads untouched.
// Fetching may fan out up to the configured concurrency; each worker
// creates its destination with O_EXCL so no file is written twice.
package mirror
