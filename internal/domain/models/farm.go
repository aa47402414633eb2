package models

// Farm is the read-only view of a farm needed by the milk pipeline.
type Farm struct {
	ID           string `bson:"_id" json:"id"`
	Name         string `bson:"name" json:"name"`
	OwnerName    string `bson:"owner_name,omitempty" json:"owner_name,omitempty"`
	OwnerContact string `bson:"owner_contact,omitempty" json:"owner_contact,omitempty"`
	Active       bool   `bson:"active" json:"active"`
}
