// Package novel defines the core types and interfaces shared by the acquisition
// pipeline: book metadata, table-of-contents references, chapters, assets, and
// the page-fetch and download capabilities the pipeline depends on.
package novel
