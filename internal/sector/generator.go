// Package sector lays out a starting galaxy: regions, market stations
// positioned by layered simplex noise fields, resource richness per
// site, and the trade-route graph connecting them.
package sector

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/astralforge/starhold/internal/config"
	"github.com/astralforge/starhold/internal/economy"
	"github.com/astralforge/starhold/internal/resource"
)

// GenConfig holds sector generation parameters.
type GenConfig struct {
	Seed             int64
	Regions          int
	MarketsPerRegion int
	Extent           float64 // half-width of the square layout space
	MaxRouteDist     float64 // stations further apart than this never link
	RouteSpeed       float64 // distance units per sim second
}

// DefaultGenConfig returns a small but connected starting sector.
func DefaultGenConfig(seed int64) GenConfig {
	return GenConfig{
		Seed:             seed,
		Regions:          3,
		MarketsPerRegion: 3,
		Extent:           100,
		MaxRouteDist:     90,
		RouteSpeed:       0.5,
	}
}

// Site is one generated market station.
type Site struct {
	ID              economy.MarketID
	X, Y            float64
	Richness        map[resource.Type]float64 // [0,1] per raw resource
	Specializations []resource.Type
	Hazard          float64 // [0,1], drives route risk
}

// Sector is a generated layout ready to apply to an economy.
type Sector struct {
	Sites  []Site
	Routes []economy.TradeRoute
}

var regionNames = []string{
	"helios", "vega", "cygnus", "altair", "lyra", "orion", "draco", "keid",
}

var stationNames = []string{
	"anchorage", "bastion", "crossing", "depot", "exchange", "foundry",
	"gateway", "haven", "junction", "outpost", "prospect", "relay",
}

// rawResources are the mineable types richness fields cover.
var rawResources = []resource.Type{
	resource.Silicate, resource.Carbon, resource.Ice, resource.RareMetal,
}

// Generate lays out a deterministic sector from the seed.
func Generate(cfg GenConfig) *Sector {
	rng := rand.New(rand.NewSource(cfg.Seed))

	// One noise field per raw resource plus one for pirate hazard.
	fields := make(map[resource.Type]opensimplex.Noise, len(rawResources))
	for i, r := range rawResources {
		fields[r] = opensimplex.NewNormalized(cfg.Seed + int64(i))
	}
	hazardNoise := opensimplex.NewNormalized(cfg.Seed + 100)

	s := &Sector{}
	for ri := 0; ri < cfg.Regions; ri++ {
		region := regionNames[ri%len(regionNames)]
		// Region center, then stations scatter around it.
		cx := rng.Float64()*2*cfg.Extent - cfg.Extent
		cy := rng.Float64()*2*cfg.Extent - cfg.Extent
		for mi := 0; mi < cfg.MarketsPerRegion; mi++ {
			name := stationNames[(ri*cfg.MarketsPerRegion+mi)%len(stationNames)]
			x := cx + rng.NormFloat64()*cfg.Extent*0.15
			y := cy + rng.NormFloat64()*cfg.Extent*0.15

			site := Site{
				ID:       economy.MarketID{Region: region, Market: name},
				X:        x,
				Y:        y,
				Richness: make(map[resource.Type]float64, len(rawResources)),
				Hazard:   octaveNoise(hazardNoise, x, y, 3, 0.02, 0.5),
			}
			for _, r := range rawResources {
				site.Richness[r] = octaveNoise(fields[r], x, y, 4, 0.015, 0.5)
			}
			site.Specializations = pickSpecializations(site.Richness)
			s.Sites = append(s.Sites, site)
		}
	}

	sort.Slice(s.Sites, func(i, j int) bool {
		return s.Sites[i].ID.String() < s.Sites[j].ID.String()
	})
	s.Routes = linkSites(s.Sites, cfg)
	return s
}

// pickSpecializations marks resources whose local richness stands well
// above the site mean.
func pickSpecializations(rich map[resource.Type]float64) []resource.Type {
	var mean float64
	for _, v := range rich {
		mean += v
	}
	mean /= float64(len(rich))

	var out []resource.Type
	for _, r := range rawResources {
		if rich[r] > mean*1.25 && rich[r] > 0.5 {
			out = append(out, r)
		}
	}
	return out
}

// linkSites connects each station to its nearest neighbours, both
// directions, deduplicated.
func linkSites(sites []Site, cfg GenConfig) []economy.TradeRoute {
	type edge struct {
		a, b int
		dist float64
	}
	var edges []edge
	for i := range sites {
		// Candidate neighbours by distance.
		type cand struct {
			j    int
			dist float64
		}
		var cands []cand
		for j := range sites {
			if i == j {
				continue
			}
			d := math.Hypot(sites[i].X-sites[j].X, sites[i].Y-sites[j].Y)
			if d <= cfg.MaxRouteDist {
				cands = append(cands, cand{j, d})
			}
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
		// Two nearest links per station keeps the graph sparse but
		// connected at default density.
		limit := 2
		if len(cands) < limit {
			limit = len(cands)
		}
		for _, c := range cands[:limit] {
			a, b := i, c.j
			if a > b {
				a, b = b, a
			}
			edges = append(edges, edge{a, b, c.dist})
		}
	}

	seen := make(map[string]bool)
	var routes []economy.TradeRoute
	for _, e := range edges {
		key := fmt.Sprintf("%d-%d", e.a, e.b)
		if seen[key] {
			continue
		}
		seen[key] = true
		hazard := (sites[e.a].Hazard + sites[e.b].Hazard) / 2
		risk := riskForHazard(hazard)
		tt := e.dist / cfg.RouteSpeed
		routes = append(routes, economy.TradeRoute{
			Source: sites[e.a].ID, Destination: sites[e.b].ID,
			Distance: e.dist, TravelTime: tt, Risk: risk,
		})
		routes = append(routes, economy.TradeRoute{
			Source: sites[e.b].ID, Destination: sites[e.a].ID,
			Distance: e.dist, TravelTime: tt, Risk: risk,
		})
	}
	return routes
}

func riskForHazard(h float64) economy.RouteRisk {
	switch {
	case h < 0.3:
		return economy.RiskSafe
	case h < 0.5:
		return economy.RiskLow
	case h < 0.7:
		return economy.RiskModerate
	case h < 0.85:
		return economy.RiskHigh
	default:
		return economy.RiskExtreme
	}
}

// Apply registers the generated sector into an economy manager: markets
// stocked by local richness, specializations, and the route graph.
func Apply(s *Sector, mgr *economy.Manager, cfg *config.Config) error {
	for _, site := range s.Sites {
		mk := economy.NewMarket(site.ID, cfg.Economy.PriceHistoryCap)
		for _, r := range resource.All {
			if r == resource.OMEN {
				continue
			}
			sd := stockFor(r, site)
			mk.Track(r, sd)
		}
		for _, r := range site.Specializations {
			mk.Specialize(r)
		}
		if err := mgr.RegisterMarket(mk); err != nil {
			return err
		}
	}
	for _, rt := range s.Routes {
		if err := mgr.Analyzer.AddRoute(rt); err != nil {
			return err
		}
	}
	return nil
}

// stockFor derives a supply/demand record from site richness. Raw
// resources stock to local abundance; refined goods start scarce
// everywhere and regenerate only through production.
func stockFor(r resource.Type, site Site) economy.SupplyDemand {
	if rich, ok := site.Richness[r]; ok {
		max := 400 + rich*1600
		return economy.SupplyDemand{
			CurrentSupply:  math.Floor(max * 0.5),
			MaxSupply:      math.Floor(max),
			BaseDemand:     40 + (1-rich)*80,
			SupplyRate:     2 + rich*10, // per game-hour
			DemandRate:     1 + (1-rich)*4,
			SupplyModifier: 1,
			DemandModifier: 1,
			Elasticity:     0.6 + rich*0.3,
		}
	}
	return economy.SupplyDemand{
		CurrentSupply:  40,
		MaxSupply:      250,
		BaseDemand:     60,
		SupplyRate:     0.5,
		DemandRate:     2,
		SupplyModifier: 1,
		DemandModifier: 1,
		Elasticity:     0.9,
	}
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
