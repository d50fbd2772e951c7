package messagequeue

// RepairGroupPayload is the schema for leads.dedup.repair messages.
type RepairGroupPayload struct {
	ContactKey string `json:"contact_key"`
}
