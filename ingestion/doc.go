// Package ingestion turns the documents of a corpus into stored points.
//
// A Pipeline lists the catalog, then for every selected source:
//   - skips it when the store already holds points for it (unless forced)
//   - fetches the raw document and strips its metadata header
//   - prepares metadata, splits the text and assigns segment ids
//   - embeds the segments in batches
//   - hands the points to the Synchronizer, which upserts them and prunes
//     positions left over from a longer earlier version
//
// Sources run on a worker pool. A failing source is recorded in the RunReport
// with the stage it failed at and never stops the run. The finished report is
// saved to the run repository so a later run can retry only the failures.
package ingestion
