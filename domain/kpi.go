package domain

import "math"

type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

var Periods = []Period{PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear}

func ParsePeriod(s string) (Period, error) {
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", ErrInvalidPeriod
}

type KpiValues struct {
	Contact  int `json:"contact"`
	Contract int `json:"contract"`
	Target   int `json:"target"`
}

// Achievement is contract/target as a rounded percentage, 0 without a target.
func (v KpiValues) Achievement() int {
	if v.Target <= 0 {
		return 0
	}
	return int(math.Round(float64(v.Contract) / float64(v.Target) * 100))
}

// KpiPatch updates individual counters; negative values are stored as zero.
type KpiPatch struct {
	Contact  *int `json:"contact,omitempty"`
	Contract *int `json:"contract,omitempty"`
	Target   *int `json:"target,omitempty"`
}

type KpiData map[Period]KpiValues

// DefaultKpi returns zero counters with the stock targets.
func DefaultKpi() KpiData {
	return KpiData{
		PeriodWeek:    {Target: 3},
		PeriodMonth:   {Target: 5},
		PeriodQuarter: {Target: 15},
		PeriodYear:    {Target: 50},
	}
}

func (k KpiData) Apply(p Period, patch KpiPatch) KpiValues {
	v := k[p]
	if patch.Contact != nil {
		v.Contact = max(0, *patch.Contact)
	}
	if patch.Contract != nil {
		v.Contract = max(0, *patch.Contract)
	}
	if patch.Target != nil {
		v.Target = max(0, *patch.Target)
	}
	k[p] = v
	return v
}
