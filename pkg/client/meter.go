package client

// Band 是毒性仪表的颜色档位。
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

// BandFor 按 0.3 / 0.7 分档。
func BandFor(score float64) Band {
	switch {
	case score < 0.3:
		return BandGreen
	case score < 0.7:
		return BandYellow
	default:
		return BandRed
	}
}

// MeterPercent 返回仪表填充百分比，限制在 [0,100]。
func MeterPercent(score float64) float64 {
	p := score * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
