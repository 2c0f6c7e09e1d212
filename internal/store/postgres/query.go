package postgres

import (
	"fmt"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// windowed appends the time window, newest-first ordering and pagination of
// opts to query. col is the timestamp column the window applies to.
func windowed(query, col string, args []any, opts domain.ListOpts) (string, []any) {
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		query += " AND " + col + " >= " + next(*opts.Since)
	}
	if opts.Until != nil {
		query += " AND " + col + " <= " + next(*opts.Until)
	}
	query += " ORDER BY " + col + " DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + next(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + next(opts.Offset)
	}
	return query, args
}
