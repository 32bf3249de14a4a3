package devices

import (
	"context"
	"errors"
	"time"

	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Database is the part of *citydb.DB the tools need.
type Database interface {
	Query(ctx context.Context, query string, args ...any) (*citydb.Table, error)
	Sample(ctx context.Context, table string, limit int) (*citydb.Table, error)
	Describe(ctx context.Context) ([]citydb.TableInfo, error)
	Ping(ctx context.Context) error
	Dialect() string
}

// CityDB returns the analytics database tools. Each statement is bounded by timeout.
func CityDB(db Database, timeout time.Duration) []Tool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tables := make([]any, 0, 3)
	for _, n := range citydb.TableNames() {
		tables = append(tables, n)
	}
	h := dbHandlers{db: db, timeout: timeout}
	return []Tool{
		{
			Definition: tool.Definition{
				Name:        "execute_sql",
				Description: "Run a read-only SQL query against the city database (tables: residents, tenant, traffic)",
				Params: map[string]tool.Param{
					"query": {Type: tool.TypeString, Required: true, Description: "A single SELECT statement"},
				},
			},
			Handler: tool.HandlerFunc(h.executeSQL),
			Format:  formatTable,
		},
		{
			Definition: tool.Definition{
				Name:        "get_table_info",
				Description: "List the city database tables with their columns and row counts",
			},
			Handler: tool.HandlerFunc(h.tableInfo),
			Format:  formatTableInfo,
		},
		{
			Definition: tool.Definition{
				Name:        "get_sample_data",
				Description: "Get sample rows from a city database table",
				Params: map[string]tool.Param{
					"table": {Type: tool.TypeString, Required: true, Description: "Table name", Enum: tables},
					"limit": {
						Type:        tool.TypeInteger,
						Description: "Number of rows to return",
						Default:     citydb.DefaultSampleLimit,
						Minimum:     tool.Bound(1),
						Maximum:     tool.Bound(citydb.MaxRows),
					},
				},
			},
			Handler: tool.HandlerFunc(h.sample),
			Format:  formatTable,
		},
		{
			Definition: tool.Definition{
				Name:        "test_connection",
				Description: "Check that the city database is reachable",
			},
			Handler: tool.HandlerFunc(h.testConnection),
			Format:  formatConnection,
		},
	}
}

type dbHandlers struct {
	db      Database
	timeout time.Duration
}

func (h dbHandlers) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
}

func (h dbHandlers) executeSQL(ctx context.Context, args tool.Args) tool.Result {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	t, err := h.db.Query(ctx, args.String("query"))
	if err != nil {
		return dbFailure("execute_sql", err)
	}
	return tool.SuccessValue(t)
}

func (h dbHandlers) sample(ctx context.Context, args tool.Args) tool.Result {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	t, err := h.db.Sample(ctx, args.String("table"), int(args.Int("limit")))
	if err != nil {
		return dbFailure("get_sample_data", err)
	}
	return tool.SuccessValue(t)
}

func (h dbHandlers) tableInfo(ctx context.Context, _ tool.Args) tool.Result {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	infos, err := h.db.Describe(ctx)
	if err != nil {
		return dbFailure("get_table_info", err)
	}
	return tool.SuccessValue(map[string]any{"tables": infos})
}

func (h dbHandlers) testConnection(ctx context.Context, _ tool.Args) tool.Result {
	ctx, cancel := h.bounded(ctx)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		return dbFailure("test_connection", err)
	}
	return tool.SuccessValue(map[string]any{"status": "ok", "dialect": h.db.Dialect()})
}

func dbFailure(name string, err error) tool.Result {
	ctx := map[string]any{"tool": name}
	switch {
	case errors.Is(err, citydb.ErrNotReadOnly):
		return tool.Fail(errmodel.InvalidArgument(name, "query", err.Error()))
	case errors.Is(err, citydb.ErrUnknownTable):
		return tool.Fail(errmodel.InvalidArgument(name, "table", err.Error()))
	case errors.Is(err, citydb.ErrUnavailable):
		return tool.Fail(errmodel.RemoteUnavailable("database unavailable", ctx, err))
	case errors.Is(err, context.DeadlineExceeded):
		return tool.Fail(errmodel.RemoteUnavailable("database query timed out", ctx, err))
	default:
		return tool.Fail(errmodel.RemoteRejected("query failed: "+err.Error(), ctx))
	}
}
