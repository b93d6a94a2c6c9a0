package auth

// Stats is a point-in-time census of the engine state, for startup logs
// and operational introspection.
type Stats struct {
	Users             int `json:"users"`
	ActiveSessions    int `json:"active_sessions"`
	TotalSessions     int `json:"total_sessions"`
	PendingChallenges int `json:"pending_challenges"`
	PersonalTokens    int `json:"personal_tokens"`
	RevokedTokens     int `json:"revoked_tokens"`
}

// Stats counts the current records under a read lock.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Users:             len(s.state.Users),
		TotalSessions:     len(s.state.Sessions),
		PendingChallenges: len(s.state.Challenges),
		PersonalTokens:    len(s.state.Tokens),
		RevokedTokens:     len(s.state.RevokedByID),
	}
	for _, sess := range s.state.Sessions {
		if sess.Status == SessionActive {
			st.ActiveSessions++
		}
	}
	return st
}
