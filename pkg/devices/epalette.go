package devices

import (
	"context"
	"net/http"

	"github.com/ryotayamanaka/mcp-city/pkg/errmodel"
	"github.com/ryotayamanaka/mcp-city/pkg/gateway"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// Destinations are the locations the ePalette can be sent to.
var Destinations = []string{
	"Central Plaza",
	"East Commercial District",
	"Tech Park",
	"South Residential",
	"West Park",
	"North School",
}

// EPalette returns the ePalette display and vehicle tools backed by c.
func EPalette(c *gateway.Client) []Tool {
	destinations := make([]any, len(Destinations))
	for i, d := range Destinations {
		destinations[i] = d
	}
	return []Tool{
		{
			Definition: tool.Definition{
				Name:        "get_epalette_status",
				Description: "Get comprehensive ePalette status including display and vehicle information",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/epalette/status"}),
			Format:  formatEPaletteStatus,
		},
		{
			Definition: tool.Definition{
				Name:        "get_display_status",
				Description: "Get the current ePalette display status",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/epalette/screen/status"}),
			Format:  formatDisplayStatus,
		},
		{
			Definition: tool.Definition{
				Name:        "update_display_text",
				Description: "Update the ePalette LED display text",
				Params: map[string]tool.Param{
					"text":      {Type: tool.TypeString, Required: true, Description: "Main text to display"},
					"subtext":   {Type: tool.TypeString, Description: "Secondary text shown under the main text"},
					"font_size": {Type: tool.TypeInteger, Description: "Font size in pixels", Default: 24, Minimum: tool.Bound(8), Maximum: tool.Bound(128)},
					"color":     {Type: tool.TypeString, Description: "Text color", Default: "white"},
				},
			},
			Handler: c.Handler(gateway.Endpoint{
				Method: http.MethodPost,
				Path:   "/api/epalette/screen/text",
				Body:   []string{"text", "subtext", "font_size", "color"},
			}),
			Format: formatDisplayUpdate,
		},
		{
			Definition: tool.Definition{
				Name:        "update_display_image",
				Description: "Show an image on the ePalette LED display",
				Params: map[string]tool.Param{
					"image_url": {Type: tool.TypeString, Required: true, Description: "http(s) URL of the image", Pattern: `^https?://`},
					"duration":  {Type: tool.TypeInteger, Description: "Seconds to show the image", Default: 30, Minimum: tool.Bound(1)},
				},
			},
			Handler: c.Handler(gateway.Endpoint{
				Method: http.MethodPost,
				Path:   "/api/epalette/screen/image",
				Body:   []string{"image_url", "duration"},
			}),
			Format: formatDisplayUpdate,
		},
		{
			Definition: tool.Definition{
				Name:        "clear_display",
				Description: "Reset the ePalette LED display to its default content",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodDelete, Path: "/api/epalette/screen"}),
			Format:  formatDisplayUpdate,
		},
		{
			Definition: tool.Definition{
				Name:        "control_vehicle",
				Description: "Control ePalette vehicle movement: start, stop, pause or move to a destination",
				Params: map[string]tool.Param{
					"action":      {Type: tool.TypeString, Required: true, Description: "Control action", Enum: []any{"start", "stop", "pause", "move_to"}},
					"destination": {Type: tool.TypeString, Description: "Destination for move_to", Enum: destinations},
					"speed":       {Type: tool.TypeNumber, Description: "Speed in km/h", Minimum: tool.Bound(0), Maximum: tool.Bound(200)},
				},
			},
			Handler: requireDestination(c.Handler(gateway.Endpoint{
				Method: http.MethodPost,
				Path:   "/api/epalette/control",
				Body:   []string{"action", "destination", "speed"},
			})),
			Format: formatControl,
		},
	}
}

// requireDestination rejects move_to without a destination before the gateway is called.
func requireDestination(next tool.Handler) tool.Handler {
	return tool.HandlerFunc(func(ctx context.Context, args tool.Args) tool.Result {
		if args.String("action") == "move_to" && !args.Has("destination") {
			return tool.Fail(errmodel.MissingArgument("control_vehicle", "destination"))
		}
		return next.Call(ctx, args)
	})
}
