// Package ingest turns a directory of Markdown, HTML and plain text files
// into chunked documents for the in-memory knowledge index.
//
// Markdown files may open with a YAML front matter block; its scalar keys
// become document metadata, so a file headed
//
//	---
//	type: incident
//	severity: critical
//	---
//
// can be counted with aggregation filters.
package ingest
