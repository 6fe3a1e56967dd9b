package medication

import "time"

// ToleranceHours is the grace period allowing a dose slightly before the
// cooldown boundary. Hardcoded regardless of interval length; changing it
// needs product confirmation.
const ToleranceHours = 0.5

// ProjectNext returns the next eligible dose timestamp: the earliest
// time-of-day strictly after now's time-of-day on now's calendar day, or the
// earliest entry on the following day once all of today's times have passed.
// Returns nil for an empty schedule. Referentially transparent: no wall-clock
// reads, and the result is in now's location.
func ProjectNext(dailyTimes []TimeOfDay, now time.Time) *time.Time {
	if len(dailyTimes) == 0 {
		return nil
	}
	times := sortedTimes(dailyTimes)
	nowMinutes := now.Hour()*60 + now.Minute()

	y, m, d := now.Date()
	for _, t := range times {
		if t.Minutes() > nowMinutes {
			next := time.Date(y, m, d, t.Minutes()/60, t.Minutes()%60, 0, 0, now.Location())
			return &next
		}
	}

	earliest := times[0]
	next := time.Date(y, m, d, earliest.Minutes()/60, earliest.Minutes()%60, 0, 0, now.Location()).AddDate(0, 0, 1)
	return &next
}

// IntervalHours returns the dose interval implied by the schedule: 24 hours
// divided by the number of daily times, never less than one dose per day.
func IntervalHours(dailyTimes []TimeOfDay) float64 {
	doseCount := len(dailyTimes)
	if doseCount < 1 {
		doseCount = 1
	}
	return 24.0 / float64(doseCount)
}

// Remaining is the wait left before the next dose, floored to whole hours and
// minutes.
type Remaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// CooldownResult is the outcome of a cooldown check.
type CooldownResult struct {
	Permitted      bool       `json:"permitted"`
	Remaining      *Remaining `json:"remaining,omitempty"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

// CanAdminister decides whether a dose may be given at now, given the order's
// schedule and last administration. A dose is permitted once the elapsed time
// since the last dose reaches the interval minus the tolerance. Pure: no
// wall-clock reads.
func CanAdminister(dailyTimes []TimeOfDay, lastDoseAt *time.Time, now time.Time) CooldownResult {
	if lastDoseAt == nil {
		return CooldownResult{Permitted: true}
	}

	interval := IntervalHours(dailyTimes)
	elapsed := now.Sub(*lastDoseAt).Hours()
	if elapsed >= interval-ToleranceHours {
		return CooldownResult{Permitted: true}
	}

	nextEligible := lastDoseAt.Add(time.Duration(interval * float64(time.Hour)))
	totalMinutes := int(nextEligible.Sub(now).Minutes())
	if totalMinutes < 0 {
		totalMinutes = 0
	}
	return CooldownResult{
		Permitted:      false,
		Remaining:      &Remaining{Hours: totalMinutes / 60, Minutes: totalMinutes % 60},
		NextEligibleAt: &nextEligible,
	}
}
