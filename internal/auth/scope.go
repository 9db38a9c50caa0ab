package auth

import "github.com/sg-security/backend/internal/models"

// Scope lists the cameras a caller may see. Admin roles see all.
type Scope struct {
	All     bool
	Cameras []string
}

// ScopeOf derives the scope of u.
func ScopeOf(u *models.User) Scope {
	if u.Role.IsAdmin() {
		return Scope{All: true}
	}
	cams := u.AssignedCameras
	if cams == nil {
		cams = []string{}
	}
	return Scope{Cameras: cams}
}

// Allows reports whether cameraID is in scope.
func (s Scope) Allows(cameraID string) bool {
	if s.All {
		return true
	}
	for _, id := range s.Cameras {
		if id == cameraID {
			return true
		}
	}
	return false
}

// Filter returns the camera allow-list for queries, nil when unrestricted.
func (s Scope) Filter() []string {
	if s.All {
		return nil
	}
	if s.Cameras == nil {
		return []string{}
	}
	return s.Cameras
}
