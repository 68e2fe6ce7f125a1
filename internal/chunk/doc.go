// Package chunk splits a Markdown file's AST into stable, breadcrumb
// tracked chunks. It has no knowledge of the manifest resolver that
// produced its strategy/metadata inputs, nor of the embedding pipeline
// that consumes its output; it is grounded on github.com/yuin/goldmark
// for AST parsing with source-position offsets.
package chunk
