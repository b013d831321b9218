package shared

// Candidate workflow permissions.
const (
	PermScreeningView       = "screening.view"
	PermScreeningComplete   = "screening.complete"
	PermOrientationComplete = "orientation.complete"
	PermEnrollmentManage    = "enrollment.manage"
	PermCandidateRegister   = "candidate.register"
)

// Training batch permissions.
const (
	PermTrainingView   = "training.view"
	PermTrainingManage = "training.manage"
)

// Aging notification permissions.
const (
	PermNotificationsView   = "notifications.view"
	PermNotificationsManage = "notifications.manage"
)

// OnboardingScopes lists all permissions related to the candidate pipeline.
func OnboardingScopes() []string {
	return []string{
		PermScreeningView,
		PermScreeningComplete,
		PermOrientationComplete,
		PermEnrollmentManage,
		PermCandidateRegister,
		PermTrainingView,
		PermTrainingManage,
		PermNotificationsView,
		PermNotificationsManage,
	}
}
