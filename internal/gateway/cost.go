package gateway

import (
	"github.com/shopspring/decimal"

	"github.com/vectorplane/llmgateway/internal/catalog"
	"github.com/vectorplane/llmgateway/internal/translate"
)

// computeCost implements §4.E step 6: requestCost, if the mapping charges a
// flat per-request price, plus token cost at the mapping's per-million-token
// prices, plus a flat per-image charge for each input image part, all scaled
// by the mapping's discount when present. A cached response costs nothing.
func computeCost(mapping catalog.ProviderMapping, usage translate.Usage, imageCount int, cached bool) decimal.Decimal {
	if cached {
		return decimal.Zero
	}

	total := decimal.Zero
	perMillion := decimal.NewFromInt(1_000_000)

	if mapping.RequestPrice != nil {
		total = total.Add(*mapping.RequestPrice)
	}
	if mapping.InputPrice != nil && usage.PromptTokens > 0 {
		total = total.Add(mapping.InputPrice.Mul(decimal.NewFromInt(int64(usage.PromptTokens))).Div(perMillion))
	}
	if mapping.OutputPrice != nil {
		outputTokens := usage.CompletionTokens + usage.ReasoningTokens
		if outputTokens > 0 {
			total = total.Add(mapping.OutputPrice.Mul(decimal.NewFromInt(int64(outputTokens))).Div(perMillion))
		}
	}
	if mapping.ImageInputPrice != nil && imageCount > 0 {
		total = total.Add(mapping.ImageInputPrice.Mul(decimal.NewFromInt(int64(imageCount))))
	}

	if mapping.Discount != nil {
		total = total.Mul(*mapping.Discount)
	}

	return total
}

// countImageParts counts the image_url content parts across a request's
// messages, the unit computeCost's per-image charge multiplies against.
func countImageParts(req *translate.Request) int {
	n := 0
	for _, m := range req.Messages {
		for _, p := range m.Content {
			if p.Type == "image_url" && p.ImageURL != nil {
				n++
			}
		}
	}
	return n
}
