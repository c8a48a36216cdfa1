package universe

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
)

// Initial supply/demand level for newly created market entries.
const seedMarketLevel = 50

// Seed writes the static galaxy into the database, creating rows that do
// not exist yet and leaving existing ones untouched. Market entries are
// created for every (station, good) pair so the drift model always has a
// complete matrix to work on.
func Seed(db *gorm.DB, u *Universe) error {
	for _, s := range u.Systems {
		row := model.StarSystem{
			Key:         s.Key,
			Name:        s.Name,
			X:           s.X,
			Y:           s.Y,
			DangerLevel: s.DangerLevel,
		}
		if err := db.Where(model.StarSystem{Key: s.Key}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("seeding system %q: %w", s.Key, err)
		}
	}

	for _, c := range u.Connections {
		row := model.SystemConnection{
			FromKey:  c.From,
			ToKey:    c.To,
			FuelCost: c.FuelCost,
		}
		if err := db.Where(model.SystemConnection{FromKey: c.From, ToKey: c.To}).
			FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("seeding connection %s-%s: %w", c.From, c.To, err)
		}
	}

	for _, g := range u.Goods {
		row := model.Good{
			Key:          g.Key,
			Name:         g.Name,
			BasePrice:    g.BasePrice,
			PriceFloor:   g.PriceFloor,
			PriceCeiling: g.PriceCeiling,
		}
		if err := db.Where(model.Good{Key: g.Key}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("seeding good %q: %w", g.Key, err)
		}
	}

	for _, st := range u.Stations {
		row := model.Station{
			Key:       st.Key,
			Name:      st.Name,
			SystemKey: st.SystemKey,
			Produces:  strings.Join(st.Produces, ","),
			Consumes:  strings.Join(st.Consumes, ","),
		}
		if err := db.Where(model.Station{Key: st.Key}).FirstOrCreate(&row).Error; err != nil {
			return fmt.Errorf("seeding station %q: %w", st.Key, err)
		}

		for _, g := range u.Goods {
			entry := model.MarketEntry{
				StationKey: st.Key,
				GoodKey:    g.Key,
				Supply:     seedMarketLevel,
				Demand:     seedMarketLevel,
			}
			if err := db.Where(model.MarketEntry{StationKey: st.Key, GoodKey: g.Key}).
				FirstOrCreate(&entry).Error; err != nil {
				return fmt.Errorf("seeding market %s/%s: %w", st.Key, g.Key, err)
			}
		}
	}

	return nil
}
