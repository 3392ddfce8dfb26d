package event

type Type string

const (
	TypeUserRegistered  Type = "user.registered"
	TypeUserLoggedIn    Type = "user.logged_in"
	TypeUserLoggedOut   Type = "user.logged_out"
	TypeTokenRefreshed  Type = "token.refreshed"
	TypeUserCreated     Type = "user.created"
	TypeUserUpdated     Type = "user.updated"
	TypeUserDeleted     Type = "user.deleted"
	TypeTenantCreated   Type = "tenant.created"
	TypeTenantUpdated   Type = "tenant.updated"
	TypeTenantDeleted   Type = "tenant.deleted"
	TypeTokensCleanedUp Type = "token.cleanup"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Subject   string `json:"subject,omitempty"` // user or tenant the event is about
	ActorID   string `json:"actor_id,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
