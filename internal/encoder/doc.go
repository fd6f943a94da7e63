// Package encoder provides record batch encoding to output file formats.
//
// # Supported Formats
//
//   - CSV: header from the first record's fields, then one row per record
//   - JSON: a single array with one ordered object per record
//   - Parquet: one columnar table, column types inferred from the batch;
//     a batch with schema fields but no records writes a 0-row file
//
// # Encoder Factory
//
// Use Factory to create encoder instances. Encoders hold per-file state
// (the CSV header flag), so create one for every output file:
//
//	factory := encoder.NewFactory(record.FormatCSV, encoder.Options{Header: true})
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stats, err := enc.Encode(w, batch)
//
// # Value Rendering
//
// Text formats render nil as an empty cell, nested records, maps and
// arrays as compact JSON, bytes as base64 and timestamps as RFC 3339.
// Parquet stores scalars natively (timestamps as TIMESTAMP_MICROS) and
// falls back to a UTF8 column for nested or mixed-type columns.
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//
// Column names written to Parquet replace any of ` ,;{}()\n\t=` with an
// underscore so the files load in Spark.
package encoder
