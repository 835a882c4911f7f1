package vector

import (
	"strconv"

	"github.com/kailas-cloud/ragdesk/internal/db"
	"github.com/kailas-cloud/ragdesk/internal/domain"
)

// Hash field names of a stored chunk.
const (
	fieldText     = "text"
	fieldSource   = "source"
	fieldFilename = "filename"
	fieldPage     = "page"
	fieldVector   = "vector"
)

// returnFields are the payload fields read back from a KNN search.
var returnFields = []string{fieldText, fieldSource, fieldFilename, fieldPage}

// buildHashFields converts a record into a flat map for HSET.
// An unknown page is omitted rather than stored as an empty value.
func buildHashFields(rec *domain.IndexRecord) map[string]string {
	m := map[string]string{
		fieldText:     rec.Metadata.Text,
		fieldSource:   rec.Metadata.Source,
		fieldFilename: rec.Metadata.Filename,
		fieldVector:   string(db.EncodeVector(rec.Vector)),
	}
	if rec.Metadata.Page != nil {
		m[fieldPage] = strconv.Itoa(*rec.Metadata.Page)
	}
	return m
}

// parseHashFields converts returned search fields into record metadata.
func parseHashFields(m map[string]string) domain.RecordMetadata {
	md := domain.RecordMetadata{
		Source:   m[fieldSource],
		Filename: m[fieldFilename],
		Text:     m[fieldText],
	}
	if p, err := strconv.Atoi(m[fieldPage]); err == nil {
		md.Page = &p
	}
	return md
}

