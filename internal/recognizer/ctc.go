package recognizer

import (
	"math"
	"strings"
	"time"
)

// TextLine is the recognized text of one strip with the confidence of every
// emitted character.
type TextLine struct {
	Text       string        `json:"text" yaml:"text"`
	CharScores []float64     `json:"char_scores" yaml:"char_scores"`
	Elapsed    time.Duration `json:"-" yaml:"-"`
}

// Score returns the mean character confidence, 0 for an empty line.
func (l TextLine) Score() float64 {
	if len(l.CharScores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range l.CharScores {
		sum += s
	}
	return sum / float64(len(l.CharScores))
}

// Decode performs greedy CTC decoding of a row-major timeSteps x numClasses
// matrix of logits. At every step the class with the highest softmax
// probability is taken (first on ties); it is emitted with that probability
// unless it is the blank, outside keys, or equal to the previous step's class.
func Decode(output []float32, timeSteps, numClasses int, keys Keys) TextLine {
	if len(keys) == 0 || timeSteps <= 0 || numClasses <= 0 {
		return TextLine{}
	}
	timeSteps = min(timeSteps, len(output)/numClasses)

	var sb strings.Builder
	scores := make([]float64, 0, timeSteps)
	last := -1
	for t := range timeSteps {
		row := output[t*numClasses : (t+1)*numClasses]
		var sum float64
		maxIndex := 0
		maxValue := -1000.0
		for j, v := range row {
			e := math.Exp(float64(v))
			sum += e
			if e > maxValue {
				maxValue = e
				maxIndex = j
			}
		}

		if maxIndex > 0 && maxIndex < len(keys) && maxIndex != last {
			sb.WriteString(keys[maxIndex])
			scores = append(scores, maxValue/sum)
		}
		last = maxIndex
	}
	return TextLine{Text: sb.String(), CharScores: scores}
}
