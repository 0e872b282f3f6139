package goSession

import "github.com/MrEthical07/goSession/session"

// Portal identifies which front end a Manager authenticates for. Each portal persists its
// tokens under its own pair of keys and sends its name as portalType on login.
type Portal string

const (
	PortalAdmin      Portal = "admin"
	PortalClient     Portal = "client"
	PortalEmployee   Portal = "employee"
	PortalSuperAdmin Portal = "super_admin"
)

var portalSlots = map[Portal]session.Slot{
	PortalAdmin:      {AccessKey: "admin_token", RefreshKey: "admin_refresh_token"},
	PortalClient:     {AccessKey: "token", RefreshKey: "refresh_token"},
	PortalEmployee:   {AccessKey: "employee_token", RefreshKey: "employee_refresh_token"},
	PortalSuperAdmin: {AccessKey: "super_admin_token", RefreshKey: "super_admin_refresh_token"},
}

// Valid reports whether p is a known portal.
func (p Portal) Valid() bool {
	_, ok := portalSlots[p]
	return ok
}

// Slot returns the storage keys for p. Unknown portals get a zero Slot.
func (p Portal) Slot() session.Slot {
	return portalSlots[p]
}

func (p Portal) String() string { return string(p) }
