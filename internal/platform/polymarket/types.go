// Package polymarket contains the REST clients for the Polymarket CLOB and
// Data APIs plus the order backend built on top of them.
package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string, since the data
// API is inconsistent about which one it sends for sizes and prices.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIActivity is one entry from the data API /activity feed. Timestamp is
// Unix seconds.
type APIActivity struct {
	ProxyWallet     string    `json:"proxyWallet"`
	Timestamp       int64     `json:"timestamp"`
	ConditionID     string    `json:"conditionId"`
	Type            string    `json:"type"` // TRADE, SPLIT, MERGE, REDEEM, ...
	Size            flexFloat `json:"size"`
	UsdcSize        flexFloat `json:"usdcSize"`
	TransactionHash string    `json:"transactionHash"`
	Price           flexFloat `json:"price"`
	Asset           string    `json:"asset"`
	Side            string    `json:"side"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	EventSlug       string    `json:"eventSlug"`
}

// ToDomainActivity converts an APIActivity to a domain.Activity.
func (a *APIActivity) ToDomainActivity() domain.Activity {
	return domain.Activity{
		TraderAddress: strings.ToLower(a.ProxyWallet),
		ConditionID:   a.ConditionID,
		Asset:         a.Asset,
		Side:          domain.Side(strings.ToUpper(a.Side)),
		Size:          float64(a.Size),
		UsdcSize:      float64(a.UsdcSize),
		Price:         float64(a.Price),
		Timestamp:     time.Unix(a.Timestamp, 0).UTC(),
		Slug:          a.Slug,
		EventSlug:     a.EventSlug,
		TxHash:        a.TransactionHash,
		ClaimState:    domain.ClaimStateUnclaimed,
	}
}

// APIPosition is one entry from the data API /positions endpoint.
type APIPosition struct {
	ProxyWallet  string    `json:"proxyWallet"`
	Asset        string    `json:"asset"`
	ConditionID  string    `json:"conditionId"`
	Size         flexFloat `json:"size"`
	AvgPrice     flexFloat `json:"avgPrice"`
	InitialValue flexFloat `json:"initialValue"`
	CurrentValue flexFloat `json:"currentValue"`
	CashPnL      flexFloat `json:"cashPnl"`
	PercentPnL   flexFloat `json:"percentPnl"`
	CurPrice     flexFloat `json:"curPrice"`
	Redeemable   bool      `json:"redeemable"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	EventSlug    string    `json:"eventSlug"`
}

// ToDomainPosition converts an APIPosition to a domain.Position.
func (p *APIPosition) ToDomainPosition() domain.Position {
	return domain.Position{
		Wallet:       strings.ToLower(p.ProxyWallet),
		ConditionID:  p.ConditionID,
		Asset:        p.Asset,
		Size:         float64(p.Size),
		AvgPrice:     float64(p.AvgPrice),
		InitialValue: float64(p.InitialValue),
		CurrentValue: float64(p.CurrentValue),
		CashPnL:      float64(p.CashPnL),
		PercentPnL:   float64(p.PercentPnL),
		CurPrice:     float64(p.CurPrice),
		Redeemable:   p.Redeemable,
		Title:        p.Title,
		Slug:         p.Slug,
		EventSlug:    p.EventSlug,
	}
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBookLevel is one price level in a CLOB order book response.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIOrderBook is the CLOB /book response for one asset.
type APIOrderBook struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Timestamp string         `json:"timestamp"` // Unix milliseconds as string
	Bids      []APIBookLevel `json:"bids"`
	Asks      []APIBookLevel `json:"asks"`
}

// ToDomainOrderBook converts an APIOrderBook to a domain.OrderBook, dropping
// levels that fail to parse.
func (b *APIOrderBook) ToDomainOrderBook() domain.OrderBook {
	book := domain.OrderBook{AssetID: b.AssetID}

	if ms, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		book.Timestamp = time.UnixMilli(ms).UTC()
	}

	convert := func(levels []APIBookLevel) []domain.PriceLevel {
		out := make([]domain.PriceLevel, 0, len(levels))
		for _, l := range levels {
			price, err1 := strconv.ParseFloat(l.Price, 64)
			size, err2 := strconv.ParseFloat(l.Size, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, domain.PriceLevel{Price: price, Size: size})
		}
		return out
	}
	book.Bids = convert(b.Bids)
	book.Asks = convert(b.Asks)
	return book
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success         bool     `json:"success"`
	ErrorMsg        string   `json:"errorMsg,omitempty"`
	OrderID         string   `json:"orderID,omitempty"`
	Status          string   `json:"status,omitempty"`
	TakingAmount    string   `json:"takingAmount,omitempty"`
	MakingAmount    string   `json:"makingAmount,omitempty"`
	TransactHashes  []string `json:"transactionsHashes,omitempty"`
}
