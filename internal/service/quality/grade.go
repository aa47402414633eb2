package quality

import "github.com/mamadbah2/milkchain/internal/domain/models"

// ComputeGrade returns the first tier, in order A, B, C, that the data
// satisfies, or Reject when none does. It never fails; input is validated
// before it gets here.
func ComputeGrade(data models.QualityData, s Standards) models.Grade {
	switch {
	case s.A.Satisfied(data):
		return models.GradeA
	case s.B.Satisfied(data):
		return models.GradeB
	case s.C.Satisfied(data):
		return models.GradeC
	default:
		return models.GradeReject
	}
}
