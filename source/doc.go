// Package source defines where transcripts come from.
//
// A Catalog lists the documents of one corpus from JSON metadata records; a
// Fetcher returns a document's raw text. Implementations live in the
// filesystem, s3 and gdocs subpackages and can be mixed: a corpus may keep
// its catalog in S3 and its transcripts in Google Docs.
package source
