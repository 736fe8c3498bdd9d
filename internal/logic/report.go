package logic

// SummarizeAir computes air statistics over co2 measurements in time order.
// Consecutive alarm measurements form one alarm period.
func SummarizeAir(ms []Measurement) AirStats {
	var s AirStats
	var sum float64
	inAlarm := false
	for _, m := range ms {
		if m.Kind != KindCO2 {
			continue
		}
		if s.Count == 0 || m.Value < s.Min {
			s.Min = m.Value
		}
		if s.Count == 0 || m.Value > s.Max {
			s.Max = m.Value
		}
		s.Count++
		sum += m.Value

		if m.Alarm && !inAlarm {
			s.AlarmPeriods++
		}
		inAlarm = m.Alarm
	}
	if s.Count > 0 {
		s.Avg = sum / float64(s.Count)
	}
	return s
}

// SummarizeMovement sums break measurements over all pauses of a session.
func SummarizeMovement(ms []Measurement) MovementStats {
	var s MovementStats
	pauses := make(map[int]struct{})
	for _, m := range ms {
		switch m.Kind {
		case KindSteps:
			s.Steps += int(m.Value)
		case KindCalories:
			s.Calories += m.Value
		case KindDistance:
			s.Distance += m.Value
		default:
			continue
		}
		pauses[m.PauseNumber] = struct{}{}
	}
	s.Breaks = len(pauses)
	return s
}

// BuildReport assembles the final report for a session.
func BuildReport(s Session, ms []Measurement) Report {
	return Report{
		Session:  s,
		Air:      SummarizeAir(ms),
		Movement: SummarizeMovement(ms),
	}
}
