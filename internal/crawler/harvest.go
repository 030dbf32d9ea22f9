package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"product-image-miner/config"
)

type CategoryResult struct {
	Name     string `json:"name"`
	IDs      int    `json:"ids"`
	Details  int    `json:"details"`
	Products int    `json:"products"`
	Err      string `json:"error,omitempty"`
}

// Files names the three files written per category inside dataDir.
func Files(dataDir, name string) (idsFile, rawFile, jsonFile string) {
	return filepath.Join(dataDir, "product-id_"+name+".txt"),
		filepath.Join(dataDir, "product_"+name+".txt"),
		filepath.Join(dataDir, "product_"+name+".json")
}

// Harvest crawls every category in order. A category that fails is logged
// and reported; the remaining categories still run. Only context
// cancellation and file errors stop the crawl.
func (c *Client) Harvest(ctx context.Context, categories []config.Category, dataDir string) ([]CategoryResult, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	results := make([]CategoryResult, 0, len(categories))
	for _, cat := range categories {
		res, err := c.harvestCategory(ctx, cat, dataDir)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (c *Client) harvestCategory(ctx context.Context, cat config.Category, dataDir string) (CategoryResult, error) {
	res := CategoryResult{Name: cat.Name}
	idsFile, rawFile, jsonFile := Files(dataDir, cat.Name)
	c.logger.Infow("catalog_category_started", "category", cat.Name, "category_id", cat.ID)

	ids, err := c.ProductIDs(ctx, cat.ID)
	res.IDs = len(ids)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		// Keep what was listed before the failure.
		c.logger.Warnw("catalog_listing_failed", "category", cat.Name, "ids", len(ids), "err", err)
		res.Err = err.Error()
	}
	if err := writeLines(idsFile, ids); err != nil {
		return res, err
	}

	var raws []string
	for _, id := range ids {
		raw, ok, err := c.ProductDetail(ctx, id)
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		switch {
		case err != nil:
			c.logger.Warnw("catalog_product_failed", "category", cat.Name, "id", id, "err", err)
		case !ok:
			c.logger.Warnw("catalog_product_failed", "category", cat.Name, "id", id)
		default:
			raws = append(raws, raw)
			c.logger.Debugw("catalog_product_crawled", "category", cat.Name, "id", id)
		}
		if err := c.wait(ctx); err != nil {
			return res, err
		}
	}
	res.Details = len(raws)
	if err := writeLines(rawFile, raws); err != nil {
		return res, err
	}

	products := make([]map[string]json.RawMessage, 0, len(raws))
	for _, raw := range raws {
		if doc, ok := Normalize(raw); ok {
			products = append(products, doc)
		} else {
			c.logger.Warnw("catalog_product_invalid", "category", cat.Name)
		}
	}
	res.Products = len(products)
	b, err := marshalNoEscape(products, "    ")
	if err != nil {
		return res, fmt.Errorf("encode %s: %w", jsonFile, err)
	}
	if err := os.WriteFile(jsonFile, b, 0o644); err != nil {
		return res, fmt.Errorf("write %s: %w", jsonFile, err)
	}

	c.logger.Infow("catalog_category_finished",
		"category", cat.Name,
		"ids", res.IDs,
		"details", res.Details,
		"products", res.Products,
		"file", jsonFile,
	)
	return res, nil
}

func writeLines(path string, lines []string) error {
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
