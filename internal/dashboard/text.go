package dashboard

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/stockdash/pkg/utils"
)

// RenderText formats v for a terminal.
func RenderText(v View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  [%s]\n", v.Title, v.MarketStatus)

	if v.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", v.Error)
	}
	if !v.HasStock {
		if v.Error == "" {
			sb.WriteString("No stock loaded.\n")
		}
		return sb.String()
	}

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	writeCards(tw, "", v.Summary)
	for _, sec := range v.Sections {
		writeCards(tw, sec.Name, sec.Cards)
	}

	if v.Chart != nil && len(v.Chart.Points) > 0 {
		fmt.Fprintf(tw, "\n%s\n", v.Chart.Title)
		for _, p := range v.Chart.Points {
			fmt.Fprintf(tw, "  %s\t%s\n", p.Day, utils.FormatINR(decimal.NewFromFloat(p.Price)))
		}
	}
	tw.Flush()

	if v.UpdatedAt != "" {
		fmt.Fprintf(&sb, "\nUpdated %s\n", v.UpdatedAt)
	}
	return sb.String()
}

func writeCards(tw *tabwriter.Writer, heading string, cards []Card) {
	if heading != "" {
		fmt.Fprintf(tw, "\n%s\n", heading)
	}
	for _, c := range cards {
		fmt.Fprintf(tw, "  %s\t%s\n", c.Title, c.Value)
	}
}
