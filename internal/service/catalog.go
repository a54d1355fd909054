package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"littlekobe-store/internal/models"
	"littlekobe-store/internal/redisclient"
	"littlekobe-store/internal/util"

	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

// CatalogClient fetches product data from the headless CMS, with a Redis
// cache in front. The CMS is read-only from this service's point of view.
type CatalogClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	redis      *redisclient.Client
	logger     *zap.Logger
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(baseURL, apiKey string, redis *redisclient.Client) *CatalogClient {
	return &CatalogClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		redis:      redis,
		logger:     util.GetLogger(),
	}
}

// GetProduct retrieves a product by id, preferring the cache
func (c *CatalogClient) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	if c.redis != nil {
		if payload, err := c.redis.GetCachedProduct(ctx, productID); err == nil && payload != nil {
			var product models.Product
			if err := json.Unmarshal(payload, &product); err == nil {
				return &product, nil
			}
		} else if err != nil {
			c.logger.Warn("Catalog cache read failed, going to CMS",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}

	product, err := c.fetchProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if payload, err := json.Marshal(product); err == nil {
			if err := c.redis.CacheProduct(ctx, productID, payload, productCacheTTL); err != nil {
				c.logger.Warn("Catalog cache write failed",
					zap.String("product_id", productID),
					zap.Error(err))
			}
		}
	}
	return product, nil
}

func (c *CatalogClient) fetchProduct(ctx context.Context, productID string) (*models.Product, error) {
	url := fmt.Sprintf("%s/api/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("product %s not found in catalog", productID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned %d for product %s", resp.StatusCode, productID)
	}

	var product models.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decoding catalog product: %w", err)
	}
	return &product, nil
}
