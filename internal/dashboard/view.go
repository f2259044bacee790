package dashboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/stockdash/pkg/models"
	"github.com/seenimoa/stockdash/pkg/utils"
)

// Fixed page copy.
const (
	Title       = "Stock Market Dashboard"
	Subtitle    = "Search stock to view market & financial metrics"
	Placeholder = "Enter Stock Name or Code (TCS, INFY...)"
	ChartTitle  = "Price Trend"

	labelSearch  = "Search"
	labelLoading = "Loading..."
	notAvailable = "N/A"
)

// Card tones.
const (
	ToneBlue    = "blue"
	ToneIndigo  = "indigo"
	TonePurple  = "purple"
	ToneGreen   = "green"
	ToneRed     = "red"
	ToneCyan    = "cyan"
	ToneEmerald = "emerald"
	ToneRose    = "rose"
	ToneAmber   = "amber"
)

// View is everything the page or terminal needs to draw one state.
type View struct {
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	MarketStatus string    `json:"marketStatus"`
	Search       SearchBox `json:"search"`
	Loading      bool      `json:"loading"`
	Error        string    `json:"error,omitempty"`
	Seq          uint64    `json:"seq"`

	HasStock  bool      `json:"hasStock"`
	Positive  bool      `json:"positive"`
	UpdatedAt string    `json:"updatedAt,omitempty"`
	Summary   []Card    `json:"summary,omitempty"`
	Chart     *Chart    `json:"chart,omitempty"`
	Sections  []Section `json:"sections,omitempty"`
}

// SearchBox is the query input and its submit button.
type SearchBox struct {
	Query       string `json:"query"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
	Disabled    bool   `json:"disabled"`
}

// Card is a single labelled value.
type Card struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Tone  string `json:"tone"`
}

// Section is a row of cards.
type Section struct {
	Name  string `json:"name"`
	Cards []Card `json:"cards"`
}

// Chart is the price history in display order.
type Chart struct {
	Title  string       `json:"title"`
	Points []ChartPoint `json:"points"`
	SVG    string       `json:"svg"`
}

// ChartPoint is one x-axis entry.
type ChartPoint struct {
	Day   string  `json:"day"`
	Price float64 `json:"price"`
}

// Render builds the view for s using the current market clock.
func Render(s State) View {
	return RenderAt(s, utils.NowIST())
}

// RenderAt builds the view for s as seen at now.
func RenderAt(s State, now time.Time) View {
	v := View{
		Title:        Title,
		Subtitle:     Subtitle,
		MarketStatus: utils.MarketStatusAt(now),
		Loading:      s.Loading,
		Seq:          s.Seq,
		Search: SearchBox{
			Query:       s.Query,
			Placeholder: Placeholder,
			Label:       labelSearch,
			Disabled:    s.Loading,
		},
	}
	if s.Loading {
		v.Search.Label = labelLoading
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}

	st := s.Stock
	if st == nil {
		return v
	}

	v.HasStock = true
	v.Positive = st.Positive()
	if !s.FetchedAt.IsZero() {
		v.UpdatedAt = utils.FormatDateTimeIST(s.FetchedAt)
	}

	changeTone := ToneGreen
	if !v.Positive {
		changeTone = ToneRed
	}
	v.Summary = []Card{
		{"Company", st.Company, ToneIndigo},
		{"Symbol", st.Symbol, TonePurple},
		{"Current Price", utils.FormatINR(st.Price), ToneBlue},
		{"Change", utils.FormatSigned(st.Change) + " (" + utils.FormatPct(st.ChangePercent) + ")", changeTone},
	}

	v.Chart = buildChart(st.History)

	v.Sections = []Section{
		{"Trading Info", []Card{
			{"Open", utils.FormatINR(st.Open), ToneCyan},
			{"High", utils.FormatINR(st.High), ToneEmerald},
			{"Low", utils.FormatINR(st.Low), ToneRose},
			{"Prev Close", utils.FormatINR(st.PrevClose), ToneAmber},
		}},
		{"Fundamental Info", []Card{
			{"Volume", utils.FormatVolume(st.Volume), ToneBlue},
			{"Avg Volume", utils.FormatVolume(st.AvgVolume), ToneIndigo},
			{"Market Cap", nullable(st.MarketCap, utils.FormatINRCompact), TonePurple},
			{"P/E Ratio", nullable(st.PERatio, fixed2), ToneGreen},
		}},
		{"Financial Metrics", []Card{
			{"Dividend Yield", nullable(st.DividendYield, percent), ToneEmerald},
			{"EPS", nullable(st.EPS, utils.FormatINR), ToneCyan},
			{"Beta", nullable(st.Beta, fixed2), ToneRose},
			{"52 Week High", utils.FormatINR(st.Week52High), ToneAmber},
		}},
		{"52 Week Low", []Card{
			{"52 Week Low", utils.FormatINR(st.Week52Low), ToneRed},
		}},
	}
	return v
}

func buildChart(history []models.PricePoint) *Chart {
	points := make([]ChartPoint, len(history))
	for i, p := range history {
		points[i] = ChartPoint{Day: p.Day, Price: p.Price.InexactFloat64()}
	}

	cfg := DefaultChartConfig()
	cfg.Title = ChartTitle
	return &Chart{
		Title:  ChartTitle,
		Points: points,
		SVG:    LineChart(points, cfg),
	}
}

func nullable(n decimal.NullDecimal, format func(decimal.Decimal) string) string {
	if !n.Valid {
		return notAvailable
	}
	return format(n.Decimal)
}

func fixed2(d decimal.Decimal) string { return d.StringFixed(2) }

func percent(d decimal.Decimal) string { return d.StringFixed(2) + "%" }
