// Package structured runs SQL against the active file using the embedded
// DuckDB engine. Each run materializes the file into a fresh relation,
// rewrites the user's query to reference it and drops it afterwards.
package structured

// Kind is the ingestion strategy chosen from a file extension.
type Kind string

// Ingestion kinds.
const (
	KindDelimited   Kind = "delimited"
	KindJSON        Kind = "json"
	KindJSONLines   Kind = "json-lines"
	KindParquet     Kind = "parquet"
	KindSpreadsheet Kind = "spreadsheet"
	KindText        Kind = "text"
)

// Classify maps a lower-case extension to an ingestion kind.
func Classify(ext string) Kind {
	switch ext {
	case "csv", "tsv":
		return KindDelimited
	case "json":
		return KindJSON
	case "jsonl", "ndjson":
		return KindJSONLines
	case "parquet":
		return KindParquet
	case "xlsx":
		return KindSpreadsheet
	default:
		return KindText
	}
}
