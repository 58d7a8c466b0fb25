// internal/model/contact.go
package model

// Contact is a person reachable by phone. DoNotDisturb excludes them from
// automated workflow sends when the rule respects DND.
type Contact struct {
	ID           int    `db:"id" json:"id"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	MobileNo     string `db:"mobile_no" json:"mobile_no"`
	Email        string `db:"email" json:"email,omitempty"`
	Company      string `db:"company" json:"company,omitempty"`
	DoNotDisturb bool   `db:"do_not_disturb" json:"do_not_disturb"`
}

type Customer struct {
	ID            int    `db:"id" json:"id"`
	CustomerName  string `db:"customer_name" json:"customer_name"`
	MobileNo      string `db:"mobile_no" json:"mobile_no"`
	CustomerGroup string `db:"customer_group" json:"customer_group,omitempty"`
	Territory     string `db:"territory" json:"territory,omitempty"`
}

type Lead struct {
	ID        int    `db:"id" json:"id"`
	LeadName  string `db:"lead_name" json:"lead_name"`
	MobileNo  string `db:"mobile_no" json:"mobile_no"`
	Source    string `db:"source" json:"source,omitempty"`
	Territory string `db:"territory" json:"territory,omitempty"`
}

// Recipient is a resolved campaign target: a display name plus a phone number.
type Recipient struct {
	Name     string
	MobileNo string
}
