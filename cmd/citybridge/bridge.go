package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ryotayamanaka/mcp-city/internal/config"
	"github.com/ryotayamanaka/mcp-city/pkg/citydb"
	"github.com/ryotayamanaka/mcp-city/pkg/devices"
	"github.com/ryotayamanaka/mcp-city/pkg/dispatch"
	"github.com/ryotayamanaka/mcp-city/pkg/gateway"
	"github.com/ryotayamanaka/mcp-city/pkg/render"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// bridge is the wired set of collaborators behind every serving surface.
type bridge struct {
	disp    *dispatch.Dispatcher
	render  *render.Renderer
	gateway *gateway.Client
	db      *citydb.DB
}

// buildBridge wires the registry for the configured tool sets. With connect
// unset the database is not opened and database tools report it unavailable,
// which is enough for listing definitions.
func buildBridge(ctx context.Context, cfg *config.Config, log *zap.Logger, connect bool) (*bridge, error) {
	sets, err := devices.ParseSets(cfg.Tools.Sets)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(cfg.Gateway.URL,
		gateway.WithAPIKey(cfg.Gateway.APIKey),
		gateway.WithTimeout(cfg.Gateway.Timeout),
		gateway.WithLogger(log.Named("gateway")),
	)
	if err != nil {
		return nil, err
	}
	b := &bridge{gateway: gw}

	reg := tool.NewRegistry()
	for _, set := range sets {
		var tools []devices.Tool
		switch set {
		case devices.SetVending:
			tools = devices.Vending(gw)
		case devices.SetEPalette:
			tools = devices.EPalette(gw)
		case devices.SetCityDB:
			var db devices.Database = offlineDB{}
			if connect {
				b.db, err = citydb.Open(ctx, cfg.Database.URL)
				if err != nil {
					return nil, fmt.Errorf("open city database: %w", err)
				}
				db = b.db
			}
			tools = devices.CityDB(db, cfg.Database.Timeout)
		}
		if err := devices.Register(reg, tools...); err != nil {
			b.Close()
			return nil, err
		}
	}
	reg.Seal()
	log.Info("tool registry sealed", zap.Strings("sets", sets), zap.Int("tools", reg.Len()))

	b.disp = dispatch.New(reg, dispatch.WithLogger(log.Named("dispatch")))
	est, exact := render.EstimatorFor(cfg.Render.Model)
	if !exact {
		log.Debug("token estimate falls back to rune count", zap.String("model", cfg.Render.Model))
	}
	b.render = render.New(render.WithTokenEstimator(est), render.WithMaxTokens(cfg.Render.MaxTokens))
	return b, nil
}

// text renders res with the formatter registered for name.
func (b *bridge) text(name string, res tool.Result) string {
	var format tool.Formatter
	if e, err := b.disp.Registry().Entry(name); err == nil {
		format = e.Format
	}
	return b.render.Result(res, format)
}

func (b *bridge) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

// offlineDB stands in for the city database when no connection is opened.
type offlineDB struct{}

func (offlineDB) Query(context.Context, string, ...any) (*citydb.Table, error) {
	return nil, citydb.ErrUnavailable
}

func (offlineDB) Sample(context.Context, string, int) (*citydb.Table, error) {
	return nil, citydb.ErrUnavailable
}

func (offlineDB) Describe(context.Context) ([]citydb.TableInfo, error) {
	return nil, citydb.ErrUnavailable
}

func (offlineDB) Ping(context.Context) error { return citydb.ErrUnavailable }

func (offlineDB) Dialect() string { return "" }
