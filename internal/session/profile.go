package session

import (
	"encoding/json"
	"strings"

	"nusalink.id/internal/rbac"
)

// Profile is the normalized user profile held in the value tier. Role is
// always a plain string by the time it lands here.
type Profile struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   rbac.Role `json:"role"`
	UnitID string    `json:"unit_id,omitempty"`
}

type profileAlias struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Role   json.RawMessage `json:"role"`
	UnitID string          `json:"unit_id"`
}

// UnmarshalJSON normalizes the role field at the boundary. The backend
// sends either a bare string ("SALES") or an object ({"name":"SALES"});
// any other shape fails closed to an empty role rather than guessing.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw profileAlias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = raw.ID
	p.Name = raw.Name
	p.Email = raw.Email
	p.UnitID = raw.UnitID
	p.Role = decodeRole(raw.Role)
	return nil
}

func decodeRole(raw json.RawMessage) rbac.Role {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return rbac.Role(strings.TrimSpace(asString))
	}
	var asObject struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return rbac.Role(strings.TrimSpace(asObject.Name))
	}
	return ""
}
