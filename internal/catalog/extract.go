package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Selectors names the page elements the harvester reads. Defaults match the
// storefront this crawler was built against; override via configuration.
type Selectors struct {
	CategoryCarousel string `mapstructure:"category_carousel"`
	CategoryLinks    string `mapstructure:"category_links"`
	ProductTiles     string `mapstructure:"product_tiles"`
	ProductName      string `mapstructure:"product_name"`
	ProductImages    string `mapstructure:"product_images"`
	ProductSKU       string `mapstructure:"product_sku"`
	ProductDetails   string `mapstructure:"product_details"`
	ProductPrice     string `mapstructure:"product_price"`
	ProductLabels    string `mapstructure:"product_labels"`
}

// DefaultSelectors returns the selector set for the default storefront.
func DefaultSelectors() Selectors {
	return Selectors{
		CategoryCarousel: "div .plp-carousels div .plp-carousel",
		CategoryLinks:    ".plp-carousel__link",
		ProductTiles:     ".product-item-inner-wrap",
		ProductName:      ".product-Details-name .product-tile__name",
		ProductImages:    ".img-zoom-container img",
		ProductSKU:       ".product-Details-sku",
		ProductDetails:   ".accordion-item-product-details .accordion-body",
		ProductPrice:     ".product-Details-current-price",
		ProductLabels:    ".product-Details-common-description img:not(.product-Details-ui.image)",
	}
}

// AbsoluteURL prefixes base onto relative storefront paths. URLs already
// under base pass through untouched.
func AbsoluteURL(base, url string) string {
	if strings.HasPrefix(url, base) {
		return url
	}
	return base + url
}

// Extractor turns one product page into one ProductRecord. Mandatory
// fields (name, price, sku, images, labels) fail the whole unit when they
// cannot be read; the details field soft-fails to nil under a short
// timeout.
type Extractor struct {
	Browser        Browser
	BaseURL        string
	Selectors      Selectors
	DetailsTimeout time.Duration
	Logger         *zap.Logger
}

// Extract fetches url and builds its record. When session is nil the
// extractor opens its own and closes it on every exit path; a supplied
// session belongs to the caller and is never closed here.
func (e *Extractor) Extract(ctx context.Context, url string, session Session) (ProductRecord, error) {
	url = AbsoluteURL(e.BaseURL, url)
	e.Logger.Info("extracting product", zap.String("url", url))

	if session == nil {
		owned, err := e.Browser.NewSession(ctx)
		if err != nil {
			return ProductRecord{}, fmt.Errorf("open session: %w", err)
		}
		defer func() {
			if cerr := owned.Close(); cerr != nil {
				e.Logger.Warn("close session", zap.String("url", url), zap.Error(cerr))
			}
		}()
		session = owned
	}

	if err := session.Navigate(ctx, url); err != nil {
		return ProductRecord{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	rawName, err := session.Text(ctx, e.Selectors.ProductName)
	if err != nil {
		return ProductRecord{}, fmt.Errorf("read product name: %w", err)
	}
	name, quantity := SplitQuantity(rawName)

	images, err := session.Attributes(ctx, e.Selectors.ProductImages, "src")
	if err != nil {
		return ProductRecord{}, fmt.Errorf("read images: %w", err)
	}

	rawSKU, err := session.Text(ctx, e.Selectors.ProductSKU)
	if err != nil {
		return ProductRecord{}, fmt.Errorf("read sku: %w", err)
	}
	barcode := BarcodeFromSKU(rawSKU)

	details := e.extractDetails(ctx, session)

	price, err := e.extractPrice(ctx, session)
	if err != nil {
		return ProductRecord{}, err
	}

	rawLabels, err := session.Attributes(ctx, e.Selectors.ProductLabels, "alt")
	if err != nil {
		return ProductRecord{}, fmt.Errorf("read labels: %w", err)
	}
	labels := make([]string, 0, len(rawLabels))
	for _, l := range rawLabels {
		if trimmed := strings.TrimSpace(l); trimmed != "" {
			labels = append(labels, trimmed)
		}
	}

	return ProductRecord{
		Name:     name,
		Quantity: quantity,
		Price:    price,
		Images:   images,
		Barcode:  barcode,
		Labels:   labels,
		Details:  details,
		StoreURL: url,
	}, nil
}

// extractDetails reads the free-text details section. The section is
// optional and often absent, so any failure within the timeout yields nil.
func (e *Extractor) extractDetails(ctx context.Context, session Session) *string {
	timeout := e.DetailsTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := session.Text(dctx, e.Selectors.ProductDetails)
	if err != nil {
		return nil
	}
	details := CollapseSpace(raw)
	return &details
}

func (e *Extractor) extractPrice(ctx context.Context, session Session) (float64, error) {
	raw, err := session.Text(ctx, e.Selectors.ProductPrice)
	if err != nil {
		return 0, fmt.Errorf("read price: %w", err)
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %v", price)
	}
	return price, nil
}
