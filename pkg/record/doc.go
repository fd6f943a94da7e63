// Package record defines the data model used across a conversion run.
//
// # Raw files
//
// Sources return input files keyed by their source-relative identifier:
//
//	files, err := src.GetData(ctx)
//	raw := record.RawFile{Name: "2024/01/events.avro", Data: files["2024/01/events.avro"]}
//
// # Records and batches
//
// A Record keeps both the values and the order in which the Avro writer
// schema declared them, so CSV headers and JSON objects follow that order:
//
//	rec := record.NewRecord(2)
//	rec.Set("name", "John")
//	rec.Set("address", "New York")
//	b, _ := json.Marshal(rec) // {"name":"John","address":"New York"}
//
// A Batch holds every record of one file together with the schema field
// names, which survive a file with no records. Batch.Columns returns the
// schema fields followed by any other record fields in first-seen order.
//
// # Formats and sources
//
// Both enums are closed and parsed case-insensitively:
//
//	record.ParseFileFormat("CSV")  // record.FormatCSV
//	record.ParseSourceKind("gs")   // record.SourceGCS
package record
