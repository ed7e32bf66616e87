package resource

import "fmt"

// Quality is the tier assigned to a crafted item.
type Quality uint8

const (
	QualityScrap Quality = iota
	QualityCommon
	QualityStandard
	QualityQuality
	QualitySuperior
	QualityMasterwork
	QualityLegendary
)

var qualityNames = [...]string{
	"scrap", "common", "standard", "quality", "superior", "masterwork", "legendary",
}

func (q Quality) String() string {
	if int(q) < len(qualityNames) {
		return qualityNames[q]
	}
	return "unknown"
}

// MarshalText serializes the tier by name in save files.
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText restores a tier from its name.
func (q *Quality) UnmarshalText(b []byte) error {
	name := string(b)
	for i, n := range qualityNames {
		if n == name {
			*q = Quality(i)
			return nil
		}
	}
	return fmt.Errorf("unknown quality tier %q", name)
}

// QualityBand maps a final roll score onto a tier. Thresholds are lower
// bounds; the table must stay sorted ascending.
type QualityBand struct {
	Min  float64
	Tier Quality
}

// DefaultQualityBands is the monotone threshold table for quality rolls.
var DefaultQualityBands = []QualityBand{
	{0.00, QualityScrap},
	{0.15, QualityCommon},
	{0.40, QualityStandard},
	{0.72, QualityQuality},
	{0.85, QualitySuperior},
	{0.95, QualityMasterwork},
	{0.99, QualityLegendary},
}

// TierForScore maps a clamped score through the band table.
func TierForScore(score float64, bands []QualityBand) Quality {
	tier := QualityScrap
	for _, b := range bands {
		if score >= b.Min {
			tier = b.Tier
		}
	}
	return tier
}

// ValueMultipliers holds the per-tier value scaling applied to item worth.
var ValueMultipliers = map[Quality]float64{
	QualityScrap:      0.4,
	QualityCommon:     0.8,
	QualityStandard:   1.0,
	QualityQuality:    1.4,
	QualitySuperior:   2.0,
	QualityMasterwork: 3.2,
	QualityLegendary:  6.0,
}

// XPMultipliers scales skill XP rewards by the quality produced.
var XPMultipliers = map[Quality]float64{
	QualityScrap:      0.5,
	QualityCommon:     0.8,
	QualityStandard:   1.0,
	QualityQuality:    1.25,
	QualitySuperior:   1.6,
	QualityMasterwork: 2.2,
	QualityLegendary:  3.0,
}

// ClampTier bounds a tier after critical escalation.
func ClampTier(q int) Quality {
	if q < int(QualityScrap) {
		return QualityScrap
	}
	if q > int(QualityLegendary) {
		return QualityLegendary
	}
	return Quality(q)
}
