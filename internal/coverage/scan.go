package coverage

import (
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "coverage: scan string row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "coverage: iterate rows")
	}
	return out, nil
}
