package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the Shopify Admin GraphQL API for a single shop.
// All calls are single-shot: retry policy belongs to the caller.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Options configures a Client.
type Options struct {
	ShopDomain string // e.g. "example.myshopify.com"
	Token      string
	APIVersion string
	Timeout    time.Duration // per-call ceiling; tighter request contexts still apply
	RPS        int           // client-side throttle against the Admin API cost limit
	Burst      int
	Endpoint   string // overrides the URL derived from ShopDomain
}

// NewClient creates an Admin API client.
func NewClient(opts Options) *Client {
	if opts.APIVersion == "" {
		opts.APIVersion = "2024-10"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.RPS
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", opts.ShopDomain, opts.APIVersion)
	}
	return &Client{
		endpoint:   endpoint,
		token:      opts.Token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst),
		logger:     slog.Default().With("component", "shopify"),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// do executes one GraphQL operation and decodes the data payload into out.
// Network failures, non-200 responses and top-level GraphQL errors all
// surface as *TransportError; field-level userErrors inside the data payload
// are the caller's to interpret.
func (c *Client) do(ctx context.Context, op, query string, variables map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: op, Err: err}
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("shopify: %s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("shopify: %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gqlResp.Errors) > 0 {
		return &TransportError{Op: op, Err: fmt.Errorf("graphql: %s", gqlResp.Errors[0].Message)}
	}

	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

const variantInventoryItemQuery = `
query variantInventoryItem($variantId: ID!) {
  productVariant(id: $variantId) {
    id
    inventoryItem {
      id
      inventoryLevels(first: 10) {
        edges {
          node {
            location { id }
            quantities(names: ["available"]) {
              name
              quantity
            }
          }
        }
      }
    }
  }
}`

// VariantInventoryItem resolves a variant to its inventory item and the
// available quantity at each stocked location (first page, up to 10).
// A nil result means the variant does not exist or tracks no inventory.
func (c *Client) VariantInventoryItem(ctx context.Context, variantID string) (*InventoryItem, error) {
	var data struct {
		ProductVariant *struct {
			InventoryItem *struct {
				ID              string `json:"id"`
				InventoryLevels struct {
					Edges []struct {
						Node struct {
							Location struct {
								ID string `json:"id"`
							} `json:"location"`
							Quantities []struct {
								Name     string `json:"name"`
								Quantity int    `json:"quantity"`
							} `json:"quantities"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"inventoryLevels"`
			} `json:"inventoryItem"`
		} `json:"productVariant"`
	}

	err := c.do(ctx, "variantInventoryItem", variantInventoryItemQuery,
		map[string]any{"variantId": VariantGID(variantID)}, &data)
	if err != nil {
		return nil, err
	}
	if data.ProductVariant == nil || data.ProductVariant.InventoryItem == nil {
		return nil, nil
	}

	item := &InventoryItem{ID: data.ProductVariant.InventoryItem.ID}
	for _, edge := range data.ProductVariant.InventoryItem.InventoryLevels.Edges {
		level := InventoryLevel{LocationID: edge.Node.Location.ID}
		for _, q := range edge.Node.Quantities {
			if q.Name == "available" {
				level.Available = q.Quantity
			}
		}
		item.Levels = append(item.Levels, level)
	}
	return item, nil
}

const productFirstVariantQuery = `
query productFirstVariant($productId: ID!) {
  product(id: $productId) {
    variants(first: 1) {
      edges {
        node { id }
      }
    }
  }
}`

// ProductFirstVariant resolves a product to its first variant ID. An empty
// result means the product does not exist or has no variants.
func (c *Client) ProductFirstVariant(ctx context.Context, productID string) (string, error) {
	var data struct {
		Product *struct {
			Variants struct {
				Edges []struct {
					Node struct {
						ID string `json:"id"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"variants"`
		} `json:"product"`
	}

	err := c.do(ctx, "productFirstVariant", productFirstVariantQuery,
		map[string]any{"productId": ProductGID(productID)}, &data)
	if err != nil {
		return "", err
	}
	if data.Product == nil || len(data.Product.Variants.Edges) == 0 {
		return "", nil
	}
	return data.Product.Variants.Edges[0].Node.ID, nil
}

const adjustQuantitiesMutation = `
mutation inventoryAdjustQuantities($input: InventoryAdjustQuantitiesInput!) {
  inventoryAdjustQuantities(input: $input) {
    userErrors {
      field
      message
    }
    inventoryAdjustmentGroup {
      reason
      changes {
        name
        delta
      }
    }
  }
}`

// AdjustQuantities submits one inventoryAdjustQuantities mutation. Business
// rejections come back as UserErrors on the result; only transport and
// protocol failures return an error.
func (c *Client) AdjustQuantities(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	var data struct {
		InventoryAdjustQuantities struct {
			UserErrors               []UserError `json:"userErrors"`
			InventoryAdjustmentGroup *struct {
				Reason  string          `json:"reason"`
				Changes []AppliedChange `json:"changes"`
			} `json:"inventoryAdjustmentGroup"`
		} `json:"inventoryAdjustQuantities"`
	}

	err := c.do(ctx, "inventoryAdjustQuantities", adjustQuantitiesMutation,
		map[string]any{"input": input}, &data)
	if err != nil {
		return nil, err
	}

	result := &AdjustResult{UserErrors: data.InventoryAdjustQuantities.UserErrors}
	if group := data.InventoryAdjustQuantities.InventoryAdjustmentGroup; group != nil {
		result.Reason = group.Reason
		result.Changes = group.Changes
	}
	return result, nil
}
