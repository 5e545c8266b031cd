package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Page records one page written to the Output Tree.
type Page struct {
	// Path is the site-relative path that was crawled, e.g. "/about/".
	Path string `json:"path"`

	// URL is the absolute URL that was fetched.
	URL string `json:"url"`

	// StatusCode is the HTTP status of the final response.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type,omitempty"`

	// Size is the number of bytes written after rewriting.
	Size int `json:"size"`

	// Hash is the SHA-256 of the written content.
	Hash string `json:"hash"`

	// File is the Output Tree relative file the page was written to.
	File string `json:"file"`
}

// ComputeHash sets Hash and Size from the written content.
// Empty content produces an empty hash.
func (p *Page) ComputeHash(content []byte) {
	p.Size = len(content)
	if len(content) == 0 {
		p.Hash = ""
		return
	}

	hash := sha256.Sum256(content)
	p.Hash = hex.EncodeToString(hash[:])
}
