package cache

import (
	"time"

	"github.com/google/uuid"
)

// Eligibility verdict keys are dated so a verdict cached for one service date
// never answers for another. Plan writers invalidate with the prefix form.

func EligibilityPlanKey(planID uuid.UUID, asOf time.Time) string {
	return EligibilityPlanPrefix(planID) + asOf.Format("20060102")
}

func EligibilityPlanPrefix(planID uuid.UUID) string {
	return "eligibility:plan:" + planID.String() + ":"
}
