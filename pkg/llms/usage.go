package llms

import (
	"github.com/effective-security/x/values"
)

// Usage is the token usage reported by a backend for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens,omitempty"`
}

// IsZero returns true when no tokens were reported.
func (u *Usage) IsZero() bool {
	return u == nil || (u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0)
}

// NewUsage returns Usage with TotalTokens computed when not provided.
func NewUsage(in, out int64) *Usage {
	return &Usage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}
}

// UsageFromGenerationInfo reads the InputTokens, OutputTokens and TotalTokens
// keys of the first choice that reports them.
// Backends attach the same call usage to every choice, so choices are not summed.
func UsageFromGenerationInfo(choices []*ContentChoice) *Usage {
	for _, choice := range choices {
		if choice == nil || len(choice.GenerationInfo) == 0 {
			continue
		}
		ma := values.MapAny(choice.GenerationInfo)
		u := &Usage{
			InputTokens:  ma.Int64("InputTokens"),
			OutputTokens: ma.Int64("OutputTokens"),
			TotalTokens:  ma.Int64("TotalTokens"),
		}
		if u.IsZero() {
			continue
		}
		if u.TotalTokens == 0 {
			u.TotalTokens = u.InputTokens + u.OutputTokens
		}
		return u
	}
	return nil
}
