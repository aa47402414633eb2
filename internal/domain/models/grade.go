package models

// Grade is the quality tier assigned to a batch after laboratory testing.
type Grade string

const (
	GradeA      Grade = "A"
	GradeB      Grade = "B"
	GradeC      Grade = "C"
	GradeReject Grade = "Reject"
)

// PayableGrades lists the grades that earn money, in pricing order.
var PayableGrades = []Grade{GradeA, GradeB, GradeC}

// Valid reports whether g is one of the known grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC, GradeReject:
		return true
	}
	return false
}

func gradeScore(g Grade) float64 {
	switch g {
	case GradeA:
		return 4
	case GradeB:
		return 3
	case GradeC:
		return 2
	default:
		return 1
	}
}

// AverageGrade averages grades on a 4..1 scale and buckets the mean back into
// a letter. Dashboards depend on these exact cut-offs. An empty slice yields
// the empty grade.
func AverageGrade(grades []Grade) Grade {
	if len(grades) == 0 {
		return ""
	}

	var sum float64
	for _, g := range grades {
		sum += gradeScore(g)
	}
	avg := sum / float64(len(grades))

	switch {
	case avg >= 3.5:
		return GradeA
	case avg >= 2.5:
		return GradeB
	case avg >= 1.5:
		return GradeC
	default:
		return GradeReject
	}
}
