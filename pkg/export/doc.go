// Package export provides bucket backup and restore, and CSV output of
// folded series.
//
// # Formats
//
// JSON backups hold every stored bucket plus metadata and can be imported
// again. Importing merges: totals are added to what the store already
// holds, so restoring a backup twice doubles it.
//
//	{
//	  "metadata": {"exported_at": "...", "start": 1700000000, "end": 1700000060,
//	               "bucket_count": 2, "format": "json", "version": "1.0"},
//	  "buckets": [
//	    {"key": "tcp:8080:[127.0.0.1]:443", "direction": "read", "second": 1700000000, "bytes": 512, "packets": 1}
//	  ]
//	}
//
// CSV comes in two shapes: raw buckets (ExportBucketsCSV), and the folded
// rows of one series with the same columns as the graph data
// (ExportRowsCSV). Neither can be re-imported.
//
// # HTTP API
//
// Export endpoint: GET /v1/export
//   - format: "json" or "csv" (default: json)
//   - start, end: unix seconds (default: everything)
//   - key: endpoint key, repeatable
//
// Import endpoint: POST /v1/import with Content-Type application/json.
package export
