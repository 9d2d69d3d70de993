package evaluation

// Classification bands an average in [0, 1].
type Classification string

const (
	ClassNoData       Classification = "Sem dados"
	ClassDoesNotMeet  Classification = "Não atende"
	ClassInsufficient Classification = "Insuficiente"
	ClassRegular      Classification = "Regular"
	ClassGood         Classification = "Bom"
	ClassExcellent    Classification = "Excelente"
)

// Classify maps an average onto the fixed scale. Cut points are lower bounds.
func Classify(avg float64) Classification {
	switch {
	case avg < 0.20:
		return ClassDoesNotMeet
	case avg < 0.40:
		return ClassInsufficient
	case avg < 0.60:
		return ClassRegular
	case avg < 0.80:
		return ClassGood
	default:
		return ClassExcellent
	}
}
