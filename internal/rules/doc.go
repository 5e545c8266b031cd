// Package rules holds the path rules shared by the crawler and the asset
// mirror: which endpoints are never touched, and which content
// directories count as mirrorable assets.
package rules
