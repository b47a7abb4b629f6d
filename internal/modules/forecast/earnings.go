package forecast

import "math"

// EarningsDay is one forecast day's expected driver workload and pay
type EarningsDay struct {
	Date              string  `json:"date"`
	Weekday           string  `json:"weekday"`
	PackagesForDriver int     `json:"packages_for_driver"`
	Earnings          float64 `json:"earnings"`
	Confidence        float64 `json:"confidence"`
}

// EarningsWeek aggregates forecast days into one calendar-week group
type EarningsWeek struct {
	Days          []EarningsDay `json:"days"`
	TotalPackages int           `json:"total_packages"`
	TotalEarnings float64       `json:"total_earnings"`
}

// EarningsForecast is the full per-driver earnings projection
type EarningsForecast struct {
	DriverShare   float64        `json:"driver_share"`
	UnitPay       float64        `json:"unit_pay"`
	Weeks         []EarningsWeek `json:"weeks"`
	TotalEarnings float64        `json:"total_earnings"`
}

// Earnings decomposes a volume forecast into per-day driver earnings:
// packages = round(volume * share), earnings = packages * unitPay, grouped
// into weeks of 7 days (the last group may be shorter).
func Earnings(volumes []VolumePoint, share, unitPay float64) *EarningsForecast {
	share = math.Min(math.Max(share, 0), 1)

	out := &EarningsForecast{DriverShare: share, UnitPay: unitPay}
	var week EarningsWeek
	for i, v := range volumes {
		packages := int(math.Round(float64(v.PredictedVolume) * share))
		earnings := float64(packages) * unitPay
		week.Days = append(week.Days, EarningsDay{
			Date:              v.Date,
			Weekday:           v.Weekday,
			PackagesForDriver: packages,
			Earnings:          earnings,
			Confidence:        v.Confidence,
		})
		week.TotalPackages += packages
		week.TotalEarnings += earnings
		out.TotalEarnings += earnings

		if len(week.Days) == 7 || i == len(volumes)-1 {
			out.Weeks = append(out.Weeks, week)
			week = EarningsWeek{}
		}
	}
	return out
}
