package fetcher

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadCSVRows parses CSV data into rows of trimmed fields. The delimiter is
// sniffed from the first line: Brazilian open-data exports commonly use
// semicolons, so a first line with more semicolons than commas switches the
// reader over. Rows may have varying field counts.
func ReadCSVRows(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)

	firstLine, err := br.Peek(4096)
	if err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "fetcher: peek csv")
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(string(firstLine))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: read csv row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		rows = append(rows, record)
	}

	return rows, nil
}

func sniffDelimiter(sample string) rune {
	if i := strings.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	if strings.Count(sample, ";") > strings.Count(sample, ",") {
		return ';'
	}
	return ','
}
