// Package audit reports EXIF metadata in the images mirrored from the
// uploads directory.
//
// A static mirror republishes every upload byte for byte, including GPS
// coordinates, camera serial numbers and author tags embedded by the
// camera or editor. The audit never changes the tree; it adds findings
// to the run report so the operator can strip the metadata at the source.
package audit
