package budget

// historyWindow bounds the rolling average per task type.
const historyWindow = 10

// Prediction pairs a forecast with the later-observed actual.
type Prediction struct {
	TaskType  string  `json:"task_type"`
	Predicted int     `json:"predicted"`
	Actual    int     `json:"actual"`
	Accuracy  float64 `json:"accuracy_pct"`
	Settled   bool    `json:"settled"`
}

// Predictor forecasts token consumption per task type from a rolling
// window of observed actuals. With no history it falls back to the
// per-type default estimate, or 0 when none is configured.
type Predictor struct {
	history  map[string][]int
	defaults map[string]int
	pending  []Prediction
}

func NewPredictor(defaults map[string]int) *Predictor {
	d := make(map[string]int, len(defaults))
	for k, v := range defaults {
		d[k] = v
	}
	return &Predictor{
		history:  make(map[string][]int),
		defaults: d,
	}
}

// RecordActual adds an observation, evicting the oldest beyond the window.
func (p *Predictor) RecordActual(taskType string, tokens int) {
	h := append(p.history[taskType], tokens)
	if len(h) > historyWindow {
		h = h[len(h)-historyWindow:]
	}
	p.history[taskType] = h
}

// Predict returns the rolling average for the task type, the configured
// default when no actuals exist, and 0 when neither is available.
func (p *Predictor) Predict(taskType string) int {
	h := p.history[taskType]
	if len(h) == 0 {
		return p.defaults[taskType]
	}
	total := 0
	for _, v := range h {
		total += v
	}
	return total / len(h)
}

// PredictAndTrack forecasts and remembers the prediction so a later
// FinalizePrediction can score it against the actual.
func (p *Predictor) PredictAndTrack(taskType string) int {
	predicted := p.Predict(taskType)
	p.pending = append(p.pending, Prediction{
		TaskType:  taskType,
		Predicted: predicted,
	})
	return predicted
}

// FinalizePrediction settles the oldest unsettled prediction for the task
// type with the observed actual and feeds the actual back into history.
func (p *Predictor) FinalizePrediction(taskType string, actual int) {
	for i := range p.pending {
		pr := &p.pending[i]
		if pr.Settled || pr.TaskType != taskType {
			continue
		}
		pr.Actual = actual
		pr.Settled = true
		if pr.Predicted > 0 {
			delta := float64(pr.Predicted - actual)
			if delta < 0 {
				delta = -delta
			}
			pr.Accuracy = 100 * (1 - delta/float64(pr.Predicted))
			if pr.Accuracy < 0 {
				pr.Accuracy = 0
			}
		}
		break
	}
	p.RecordActual(taskType, actual)
}

// Accuracy averages accuracy over settled predictions, 0 when none.
func (p *Predictor) Accuracy() float64 {
	total, n := 0.0, 0
	for _, pr := range p.pending {
		if pr.Settled {
			total += pr.Accuracy
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// PredictRemaining sums forecasts for the given task types.
func (p *Predictor) PredictRemaining(taskTypes []string) int {
	total := 0
	for _, t := range taskTypes {
		total += p.Predict(t)
	}
	return total
}

// Predictions returns a copy of the tracked predictions.
func (p *Predictor) Predictions() []Prediction {
	return append([]Prediction(nil), p.pending...)
}
