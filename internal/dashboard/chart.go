package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// ChartConfig holds rendering parameters for the price chart.
type ChartConfig struct {
	Width        int
	Height       int
	MarginTop    int
	MarginRight  int
	MarginBottom int
	MarginLeft   int
	BgColor      string
	GridColor    string
	LineColor    string
	TextColor    string
	FontSize     int
	Title        string
}

// DefaultChartConfig returns the dashboard's chart geometry.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       320,
		MarginTop:    40,
		MarginRight:  30,
		MarginBottom: 40,
		MarginLeft:   80,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		LineColor:    "#4f46e5",
		TextColor:    "#333333",
		FontSize:     11,
	}
}

func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

// LineChart draws points as an SVG line, left to right in slice order.
// Each point also gets a marker carrying data-day and data-price attributes.
func LineChart(points []ChartPoint, cfg ChartConfig) string {
	if cfg.Width == 0 {
		title := cfg.Title
		cfg = DefaultChartConfig()
		cfg.Title = title
	}
	if len(points) == 0 {
		return emptySVG(cfg, "No price history")
	}

	px, py, pw, ph := cfg.plotArea()
	n := len(points)

	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		minVal = math.Min(minVal, p.Price)
		maxVal = math.Max(maxVal, p.Price)
	}
	vRange := maxVal - minVal
	if vRange < 0.001 {
		vRange = 1
	}
	minVal -= vRange * 0.05
	maxVal += vRange * 0.05
	vRange = maxVal - minVal

	xAt := func(i int) float64 {
		if n == 1 {
			return float64(px) + float64(pw)/2
		}
		return float64(px) + float64(i)*float64(pw)/float64(n-1)
	}
	yAt := func(v float64) float64 {
		return float64(py+ph) - (v-minVal)/vRange*float64(ph)
	}

	var sb strings.Builder
	sb.WriteString(svgHeader(cfg))
	fmt.Fprintf(&sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		cfg.Width, cfg.Height, cfg.BgColor)
	if cfg.Title != "" {
		fmt.Fprintf(&sb, `<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
			cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title))
	}

	// Y-axis grid
	gridLines := 5
	for i := 0; i <= gridLines; i++ {
		val := minVal + vRange*float64(i)/float64(gridLines)
		y := py + ph - int(float64(ph)*float64(i)/float64(gridLines))
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.GridColor)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="%d" fill="%s" text-anchor="end">%.1f</text>`,
			px-5, y+4, cfg.FontSize, cfg.TextColor, val)
	}

	path := make([]string, n)
	for i, p := range points {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		path[i] = fmt.Sprintf("%s%.1f,%.1f", cmd, xAt(i), yAt(p.Price))
	}
	if n > 1 {
		fmt.Fprintf(&sb, `<path d="%s" fill="none" stroke="%s" stroke-width="3"/>`,
			strings.Join(path, " "), cfg.LineColor)
	}

	for i, p := range points {
		fmt.Fprintf(&sb, `<circle class="point" cx="%.1f" cy="%.1f" r="4" fill="%s" data-day="%s" data-price="%g"><title>%s: %g</title></circle>`,
			xAt(i), yAt(p.Price), cfg.LineColor, escapeXML(p.Day), p.Price, escapeXML(p.Day), p.Price)
	}

	// X-axis labels
	interval := n / 8
	if interval < 1 {
		interval = 1
	}
	for i := 0; i < n; i += interval {
		fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
			xAt(i), py+ph+18, cfg.FontSize-1, cfg.TextColor, escapeXML(points[i].Day))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

func svgHeader(cfg ChartConfig) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

func emptySVG(cfg ChartConfig, msg string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
