package auth

import "time"

// State is the complete engine state: every record and every index, saved
// and restored as one JSON document. Index invariant: every entry points at
// a record that exists, and any mutation replacing an indexed value deletes
// the stale entry in the same critical section that inserts the new one.
type State struct {
	Challenges map[string]*PendingChallenge    `json:"challenges"`
	Sessions   map[string]*Session             `json:"sessions"`
	Users      map[string]*User                `json:"users"`
	Tokens     map[string]*PersonalAccessToken `json:"personal_access_tokens"`

	// Revoked refresh tokens are kept under both the raw token value
	// (replay lookup) and the token id (idempotent reason upgrade).
	// Mutations must touch both maps.
	RevokedByValue map[string]RevokedRefreshToken `json:"revoked_by_value"`
	RevokedByID    map[string]RevokedRefreshToken `json:"revoked_by_id"`

	AccessIndex   map[string]string `json:"access_index"`
	RefreshIndex  map[string]string `json:"refresh_index"`
	EmailIndex    map[string]string `json:"email_index"`
	ProviderIndex map[string]string `json:"provider_index"`
}

// NewState returns an empty, fully initialized state.
func NewState() *State {
	return &State{
		Challenges:     make(map[string]*PendingChallenge),
		Sessions:       make(map[string]*Session),
		Users:          make(map[string]*User),
		Tokens:         make(map[string]*PersonalAccessToken),
		RevokedByValue: make(map[string]RevokedRefreshToken),
		RevokedByID:    make(map[string]RevokedRefreshToken),
		AccessIndex:    make(map[string]string),
		RefreshIndex:   make(map[string]string),
		EmailIndex:     make(map[string]string),
		ProviderIndex:  make(map[string]string),
	}
}

// normalize re-initializes any map a decoded snapshot left nil.
func (st *State) normalize() {
	if st.Challenges == nil {
		st.Challenges = make(map[string]*PendingChallenge)
	}
	if st.Sessions == nil {
		st.Sessions = make(map[string]*Session)
	}
	if st.Users == nil {
		st.Users = make(map[string]*User)
	}
	if st.Tokens == nil {
		st.Tokens = make(map[string]*PersonalAccessToken)
	}
	if st.RevokedByValue == nil {
		st.RevokedByValue = make(map[string]RevokedRefreshToken)
	}
	if st.RevokedByID == nil {
		st.RevokedByID = make(map[string]RevokedRefreshToken)
	}
	if st.AccessIndex == nil {
		st.AccessIndex = make(map[string]string)
	}
	if st.RefreshIndex == nil {
		st.RefreshIndex = make(map[string]string)
	}
	if st.EmailIndex == nil {
		st.EmailIndex = make(map[string]string)
	}
	if st.ProviderIndex == nil {
		st.ProviderIndex = make(map[string]string)
	}
}

// Clone deep-copies the state. Called under the write lock after every
// successful mutation; the clone is what gets persisted, so slow snapshot
// writes never block readers or unrelated writers.
func (st *State) Clone() *State {
	out := &State{
		Challenges:     make(map[string]*PendingChallenge, len(st.Challenges)),
		Sessions:       make(map[string]*Session, len(st.Sessions)),
		Users:          make(map[string]*User, len(st.Users)),
		Tokens:         make(map[string]*PersonalAccessToken, len(st.Tokens)),
		RevokedByValue: make(map[string]RevokedRefreshToken, len(st.RevokedByValue)),
		RevokedByID:    make(map[string]RevokedRefreshToken, len(st.RevokedByID)),
		AccessIndex:    make(map[string]string, len(st.AccessIndex)),
		RefreshIndex:   make(map[string]string, len(st.RefreshIndex)),
		EmailIndex:     make(map[string]string, len(st.EmailIndex)),
		ProviderIndex:  make(map[string]string, len(st.ProviderIndex)),
	}
	for id, ch := range st.Challenges {
		c := *ch
		out.Challenges[id] = &c
	}
	for id, sess := range st.Sessions {
		s := *sess
		s.LastRefreshedAt = copyTime(sess.LastRefreshedAt)
		s.RevokedAt = copyTime(sess.RevokedAt)
		out.Sessions[id] = &s
	}
	for id, user := range st.Users {
		u := *user
		u.Memberships = append([]OrgMembership(nil), user.Memberships...)
		for i := range u.Memberships {
			u.Memberships[i].RoleScopes = append([]string(nil), user.Memberships[i].RoleScopes...)
		}
		out.Users[id] = &u
	}
	for id, tok := range st.Tokens {
		t := *tok
		t.Scopes = append([]string(nil), tok.Scopes...)
		t.LastUsedAt = copyTime(tok.LastUsedAt)
		t.ExpiresAt = copyTime(tok.ExpiresAt)
		t.RevokedAt = copyTime(tok.RevokedAt)
		out.Tokens[id] = &t
	}
	for k, v := range st.RevokedByValue {
		out.RevokedByValue[k] = v
	}
	for k, v := range st.RevokedByID {
		out.RevokedByID[k] = v
	}
	for k, v := range st.AccessIndex {
		out.AccessIndex[k] = v
	}
	for k, v := range st.RefreshIndex {
		out.RefreshIndex[k] = v
	}
	for k, v := range st.EmailIndex {
		out.EmailIndex[k] = v
	}
	for k, v := range st.ProviderIndex {
		out.ProviderIndex[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// cloneUser deep-copies a single user for handing out of the lock.
func cloneUser(u *User) User {
	out := *u
	out.Memberships = append([]OrgMembership(nil), u.Memberships...)
	for i := range out.Memberships {
		out.Memberships[i].RoleScopes = append([]string(nil), u.Memberships[i].RoleScopes...)
	}
	return out
}

// membership returns the user's membership in orgID, matching either the
// org id or its slug.
func (u *User) membership(orgID string) (OrgMembership, bool) {
	for _, m := range u.Memberships {
		if m.OrgID == orgID || (m.OrgSlug != "" && m.OrgSlug == orgID) {
			return m, true
		}
	}
	return OrgMembership{}, false
}

// defaultOrgID resolves the user's default membership, falling back to the
// first one.
func (u *User) defaultOrgID() string {
	for _, m := range u.Memberships {
		if m.DefaultOrg {
			return m.OrgID
		}
	}
	if len(u.Memberships) > 0 {
		return u.Memberships[0].OrgID
	}
	return ""
}
