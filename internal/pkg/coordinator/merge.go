package coordinator

import (
	"github.com/samber/lo"

	"github.com/anicoll/tibber-prices/internal/pkg/model"
	"github.com/anicoll/tibber-prices/internal/pkg/tibber"
)

type ratingPeriod string

const (
	ratingPeriodHourly  ratingPeriod = "hourly"
	ratingPeriodDaily   ratingPeriod = "daily"
	ratingPeriodMonthly ratingPeriod = "monthly"
)

func applyUserInfo(cache *model.PriceCache, viewer *tibber.Viewer) {
	if viewer == nil {
		return
	}
	cache.UserInfo = &model.UserInfo{
		UserID: viewer.UserID,
		Name:   viewer.Name,
		Login:  viewer.Login,
	}
	cache.Homes = lo.SliceToMap(viewer.Homes, func(home tibber.ViewerHome) (string, model.Home) {
		return home.ID, model.Home{
			ID:          home.ID,
			Type:        home.Type,
			AppNickname: home.AppNickname,
			Address:     home.Address,
		}
	})
}

// applyPriceInfo merges a price info response into the cache, unwrapping
// the range connection's edges/node envelope.
func applyPriceInfo(cache *model.PriceCache, homes []tibber.ViewerHome) {
	for _, home := range homes {
		if home.CurrentSubscription == nil || home.CurrentSubscription.PriceInfo == nil {
			continue
		}
		payload := home.CurrentSubscription.PriceInfo

		info, ok := cache.PriceInfo[home.ID]
		if !ok || info == nil {
			info = &model.HomePriceInfo{Today: []model.PricePoint{}, Tomorrow: []model.PricePoint{}}
			cache.PriceInfo[home.ID] = info
		}

		if payload.Range != nil {
			info.RangePrices = lo.Map(payload.Range.Edges, func(edge tibber.RangeEdge, _ int) model.PricePoint {
				return edge.Node
			})
		}
		if payload.Today != nil {
			info.Today = payload.Today
		}
		if payload.Tomorrow != nil {
			info.Tomorrow = payload.Tomorrow
		}
	}
}

func applyPriceRating(cache *model.PriceCache, homes []tibber.ViewerHome, period ratingPeriod) {
	for _, home := range homes {
		if home.CurrentSubscription == nil || home.CurrentSubscription.PriceRating == nil {
			continue
		}
		payload := home.CurrentSubscription.PriceRating

		rating, ok := cache.PriceRating[home.ID]
		if !ok || rating == nil {
			rating = &model.HomePriceRating{}
			cache.PriceRating[home.ID] = rating
		}

		if payload.ThresholdPercentages != nil {
			rating.Thresholds = payload.ThresholdPercentages
		}
		switch period {
		case ratingPeriodHourly:
			if payload.Hourly != nil {
				rating.Hourly = payload.Hourly
			}
		case ratingPeriodDaily:
			if payload.Daily != nil {
				rating.Daily = payload.Daily
			}
		case ratingPeriodMonthly:
			if payload.Monthly != nil {
				rating.Monthly = payload.Monthly
			}
		}
	}
}

func hasRatingPeriod(cache *model.PriceCache, period ratingPeriod) bool {
	for _, rating := range cache.PriceRating {
		if rating == nil {
			continue
		}
		switch period {
		case ratingPeriodHourly:
			if rating.Hourly != nil {
				return true
			}
		case ratingPeriodDaily:
			if rating.Daily != nil {
				return true
			}
		case ratingPeriodMonthly:
			if rating.Monthly != nil {
				return true
			}
		}
	}
	return false
}
