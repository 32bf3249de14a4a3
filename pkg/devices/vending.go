package devices

import (
	"net/http"

	"github.com/ryotayamanaka/mcp-city/pkg/gateway"
	"github.com/ryotayamanaka/mcp-city/pkg/tool"
)

// LowStockThreshold is the stock level at or below which a product is flagged.
const LowStockThreshold = 2

// Vending returns the vending machine tools backed by c.
func Vending(c *gateway.Client) []Tool {
	return []Tool{
		{
			Definition: tool.Definition{
				Name:        "get_products",
				Description: "Get all products available in the vending machine with their prices and categories",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/vending/products"}),
			Format:  formatProducts,
		},
		{
			Definition: tool.Definition{
				Name:        "get_inventory",
				Description: "Get current inventory status of the vending machine, including low stock alerts",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/vending/inventory"}),
			Format:  formatInventory,
		},
		{
			Definition: tool.Definition{
				Name:        "make_purchase",
				Description: "Purchase a product from the vending machine",
				Params: map[string]tool.Param{
					"product_id": {
						Type:        tool.TypeString,
						Required:    true,
						Description: "The ID of the product to purchase (e.g. 'p001')",
					},
					"quantity": {
						Type:        tool.TypeInteger,
						Description: "Number of items to purchase",
						Default:     1,
						Minimum:     tool.Bound(1),
					},
					"payment_method": {
						Type:        tool.TypeString,
						Description: "How the purchase is paid",
						Default:     "card",
						Enum:        []any{"card", "cash", "ic"},
					},
				},
			},
			Handler: c.Handler(gateway.Endpoint{
				Method: http.MethodPost,
				Path:   "/api/vending/purchase",
				Body:   []string{"product_id", "quantity", "payment_method"},
			}),
			Format: formatPurchase,
		},
		{
			Definition: tool.Definition{
				Name:        "get_sales_data",
				Description: "Get sales data from the vending machine including daily stats, popular items and hourly trends",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/vending/sales"}),
			Format:  formatSales,
		},
		{
			Definition: tool.Definition{
				Name:        "get_analytics",
				Description: "Get vending machine performance, maintenance and revenue analytics",
			},
			Handler: c.Handler(gateway.Endpoint{Method: http.MethodGet, Path: "/api/vending/analytics"}),
			Format:  formatAnalytics,
		},
	}
}
