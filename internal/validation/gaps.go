package validation

import (
	"time"

	"github.com/agrisense/agripipe/pkg/constants"
	"github.com/agrisense/agripipe/pkg/models"
)

// detectGaps generates the expected hourly series for the group's date and
// returns the missing hours as merged spans: consecutive missing hours
// collapse into a single (start, duration) span, never one span per hour.
func (v *Validator) detectGaps(key models.GroupKey, hoursPresent map[int]bool) []models.GapSpan {
	day, err := time.ParseInLocation(constants.DateLayout, key.Date, v.config.location)
	if err != nil {
		return nil
	}

	var spans []models.GapSpan
	for hour := 0; hour < constants.HoursPerDay; hour++ {
		if hoursPresent[hour] {
			continue
		}
		start := day.Add(time.Duration(hour) * time.Hour)
		if n := len(spans); n > 0 && spans[n-1].Start.Add(time.Duration(spans[n-1].Hours)*time.Hour).Equal(start) {
			spans[n-1].Hours++
			continue
		}
		spans = append(spans, models.GapSpan{Start: start, Hours: 1})
	}

	return spans
}
