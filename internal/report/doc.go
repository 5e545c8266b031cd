// Package report renders the outcome of a generation run.
//
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: Markdown with a mermaid chart of the Output Tree
//   - JSONWriter: the run and its log as one JSON document
//
// Every writer renders the ordered run log captured by log.Journal after
// the summary. Writers implement the Writer interface and can be combined
// with MultiWriter.
package report
