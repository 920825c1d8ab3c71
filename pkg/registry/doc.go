// Package registry persists which media items have already been written
// to disk, so that re-running the same crawl does not download them again.
//
// One registry file (downloaded.json) lives in each download root, next to
// the project directories rather than inside them, and maps item id to the
// path the file was written to:
//
//	{
//	  "1234567890": {"path": "downloads/cats/1234567890.jpg", "downloaded_at": "2024-05-01T10:00:00.123Z"}
//	}
//
// An entry is trusted only while its file still exists. FilterPending drops
// entries whose file is gone and re-queues the item, so deleting a file by
// hand is enough to get it downloaded again.
//
// Loading never fails: a missing file yields an empty registry, and a
// corrupt one is copied aside to downloaded.json.corrupt and treated as
// empty. Saving writes a temporary file, syncs it and renames it into place.
// The registry assumes a single writer per download root.
package registry
