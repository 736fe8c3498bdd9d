package logic

import "testing"

func TestSummarizeAirAlarmPeriods(t *testing.T) {
	ms := []Measurement{
		{Kind: KindCO2, Value: 500},
		{Kind: KindCO2, Value: 700, Alarm: true},
		{Kind: KindCO2, Value: 900, Alarm: true},
		{Kind: KindCO2, Value: 550},
		{Kind: KindSteps, Value: 10},
		{Kind: KindCO2, Value: 650, Alarm: true},
	}
	s := SummarizeAir(ms)

	if s.Count != 5 {
		t.Errorf("count = %d, want 5", s.Count)
	}
	if s.Min != 500 || s.Max != 900 {
		t.Errorf("min/max = %v/%v, want 500/900", s.Min, s.Max)
	}
	if s.Avg != 660 {
		t.Errorf("avg = %v, want 660", s.Avg)
	}
	if s.AlarmPeriods != 2 {
		t.Errorf("alarm periods = %d, want 2", s.AlarmPeriods)
	}
}

func TestSummarizeAirEmpty(t *testing.T) {
	if s := SummarizeAir(nil); s != (AirStats{}) {
		t.Errorf("expected zero stats, got %+v", s)
	}
}

func TestSummarizeMovement(t *testing.T) {
	ms := []Measurement{
		{Kind: KindSteps, Value: 100, PauseNumber: 1},
		{Kind: KindCalories, Value: 5, PauseNumber: 1},
		{Kind: KindDistance, Value: 75, PauseNumber: 1},
		{Kind: KindSteps, Value: 200, PauseNumber: 2},
		{Kind: KindCO2, Value: 600},
	}
	s := SummarizeMovement(ms)
	if s.Breaks != 2 || s.Steps != 300 || s.Calories != 5 || s.Distance != 75 {
		t.Errorf("unexpected movement stats: %+v", s)
	}
}
