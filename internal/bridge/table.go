package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/roach88/kinspect/internal/store"
)

// QueryResult is the collected result of an ad-hoc query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// RunQuery collects the rows of an ad-hoc read statement. Errors end the
// result and are reported in Error.
func RunQuery(ctx context.Context, st *store.Store, query string) QueryResult {
	res := QueryResult{Rows: [][]any{}}
	st.ExecSelectQuery(ctx, query, func(r store.QueryRow) {
		if r.Err != nil {
			res.Error = r.Err.Error()
			return
		}
		if res.Columns == nil {
			res.Columns = r.Columns
		}
		res.Rows = append(res.Rows, r.Values)
	})
	return res
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderTable draws rows as a bordered text table.
func RenderTable(columns []string, rows [][]any) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, v := range r {
			cells[i] = FormatValue(v)
		}
		t.Row(cells...)
	}
	return t.String()
}

// FormatValue renders one SQL value the way the sqlite shell does.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
