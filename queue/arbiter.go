package queue

import "hospital-portal/models"

// CanMutate reports whether caller may change session. An absent session has
// nothing to protect. The session passed in must be the persisted one, never a
// client-supplied claim.
func CanMutate(caller models.Identity, session *models.ActiveSession) bool {
	if session == nil || !session.IsRunning {
		return true
	}
	if caller.IsAdmin() {
		return true
	}
	return caller.ID != "" && caller.ID == session.RunnerID
}
