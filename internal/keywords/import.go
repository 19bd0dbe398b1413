package keywords

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/y0f/rankwatch/internal/storage"
	"github.com/y0f/rankwatch/internal/validate"
)

// ErrInvalidCSV marks input that could not be read as a keyword CSV.
var ErrInvalidCSV = errors.New("invalid keyword csv")

// Row is one line of a keyword import file. The header must include
// "keyword"; "active" is optional and defaults to true.
type Row struct {
	Keyword string `csv:"keyword"`
	Active  string `csv:"active,omitempty"`
}

type Result struct {
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Errors     []string `json:"errors"`
}

// Import reads CSV rows from r and creates keywords for siteID. Invalid rows
// and duplicates are counted and skipped; store failures abort the import.
func Import(ctx context.Context, store storage.Store, siteID int64, r io.Reader) (*Result, error) {
	dec, err := csvutil.NewDecoder(csv.NewReader(r))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv is empty", ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCSV, err)
	}
	if !hasColumn(dec.Header(), "keyword") {
		return nil, fmt.Errorf("%w: header must include a keyword column", ErrInvalidCSV)
	}

	res := &Result{Errors: []string{}}
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		var row Row
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}

		active, err := parseActive(row.Active)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		k := &storage.Keyword{SiteID: siteID, Keyword: row.Keyword, Active: active}
		if err := validate.ValidateKeyword(k); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if seen[k.Keyword] {
			res.Duplicates++
			continue
		}
		seen[k.Keyword] = true

		if err := store.CreateKeyword(ctx, k); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				res.Duplicates++
				continue
			}
			return res, fmt.Errorf("line %d: create keyword: %w", line, err)
		}
		res.Created++
	}
	return res, nil
}

func parseActive(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return true, nil
	}
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid active value %q", s)
	}
	return b, nil
}

func hasColumn(header []string, name string) bool {
	for _, h := range header {
		if h == name {
			return true
		}
	}
	return false
}
