package session

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/Sternrassler/cl-extractor/pkg/pagination"
	"github.com/Sternrassler/cl-extractor/pkg/record"
)

// Identity sentinels for author-scoped artifacts.
const (
	NameNotFound = "name not found"
	DataNotFound = "data not found"
)

// ArtifactName returns the destination of a flushed batch.
//
//	<dest>/<endpoint>_pages_<first>_to_<last>.csv
//	<dest>/<identity>_<author>.csv                       (author-scoped, flush at end, from page 1)
//	<dest>/<identity>_<author>_pages_<first>_to_<last>.csv (author-scoped otherwise)
//
// A resumed author-scoped run starts after page 1 and always gets a page
// range, so it never replaces the file written by the earlier run.
func ArtifactName(req FetchRequest, b pagination.Batch) string {
	if !req.AuthorScoped {
		return path.Join(req.Destination, fmt.Sprintf("%s_pages_%d_to_%d.csv",
			strings.ReplaceAll(req.Endpoint, "/", "_"), b.FirstPage, b.LastPage))
	}

	base := Identity(b.Records, req.IdentityField) + "_" + Sanitize(req.AuthorID)
	if req.FlushPolicy == FlushAtEnd && b.FirstPage <= 1 {
		return path.Join(req.Destination, base+".csv")
	}
	return path.Join(req.Destination, fmt.Sprintf("%s_pages_%d_to_%d.csv", base, b.FirstPage, b.LastPage))
}

// Identity returns the first non-empty value of field, sanitized. Without
// one it returns a sanitized sentinel.
func Identity(records []record.Record, field string) string {
	if len(records) == 0 {
		return Sanitize(DataNotFound)
	}
	for _, r := range records {
		if v := strings.TrimSpace(r.Text(field)); v != "" {
			return Sanitize(v)
		}
	}
	return Sanitize(NameNotFound)
}

// Sanitize replaces every character that is not a letter or digit with '_'.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
}
