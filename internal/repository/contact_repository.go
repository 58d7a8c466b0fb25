package repository

import (
	"database/sql"
	"fmt"

	"github.com/flashchat/erp-messaging/internal/model"
)

// ContactRepositoryInterface serves three consumers: campaign audience
// resolution, inbound-message linking, and the engine's DND filter.
type ContactRepositoryInterface interface {
	ListContacts() ([]model.Contact, error)
	ListCustomers(group, territory string) ([]model.Customer, error)
	ListLeads(source, territory string) ([]model.Lead, error)
	FindReferenceByPhone(phone string) (*model.Reference, error)
	IsDoNotDisturb(phone string) (bool, error)
}

type ContactRepository struct {
	DB *sql.DB
}

// ListContacts fetches every contact with a mobile number.
func (r *ContactRepository) ListContacts() ([]model.Contact, error) {
	query := `
        SELECT id, first_name, last_name, mobile_no, email, company, do_not_disturb
        FROM contacts
        WHERE mobile_no <> ''
    `
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.MobileNo, &c.Email, &c.Company, &c.DoNotDisturb); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ListCustomers fetches customers with a mobile number, optionally narrowed
// by group and territory.
func (r *ContactRepository) ListCustomers(group, territory string) ([]model.Customer, error) {
	query := `
        SELECT id, customer_name, mobile_no, customer_group, territory
        FROM customers
        WHERE mobile_no <> ''
    `
	args := []interface{}{}
	argPos := 1

	if group != "" {
		query += fmt.Sprintf(" AND customer_group=$%d", argPos)
		args = append(args, group)
		argPos++
	}
	if territory != "" {
		query += fmt.Sprintf(" AND territory=$%d", argPos)
		args = append(args, territory)
	}

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.CustomerName, &c.MobileNo, &c.CustomerGroup, &c.Territory); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ListLeads fetches leads with a mobile number, optionally narrowed by
// source and territory.
func (r *ContactRepository) ListLeads(source, territory string) ([]model.Lead, error) {
	query := `
        SELECT id, lead_name, mobile_no, source, territory
        FROM leads
        WHERE mobile_no <> ''
    `
	args := []interface{}{}
	argPos := 1

	if source != "" {
		query += fmt.Sprintf(" AND source=$%d", argPos)
		args = append(args, source)
		argPos++
	}
	if territory != "" {
		query += fmt.Sprintf(" AND territory=$%d", argPos)
		args = append(args, territory)
	}

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.LeadName, &l.MobileNo, &l.Source, &l.Territory); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// FindReferenceByPhone links an inbound message to a known record. Priority
// order is contact, then customer, then lead; first match wins. No match is
// not an error.
func (r *ContactRepository) FindReferenceByPhone(phone string) (*model.Reference, error) {
	var name string

	err := r.DB.QueryRow(`SELECT first_name || ' ' || last_name FROM contacts WHERE mobile_no=$1 LIMIT 1`, phone).Scan(&name)
	if err == nil {
		return &model.Reference{Doctype: "Contact", Name: name}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = r.DB.QueryRow(`SELECT customer_name FROM customers WHERE mobile_no=$1 LIMIT 1`, phone).Scan(&name)
	if err == nil {
		return &model.Reference{Doctype: "Customer", Name: name}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = r.DB.QueryRow(`SELECT lead_name FROM leads WHERE mobile_no=$1 LIMIT 1`, phone).Scan(&name)
	if err == nil {
		return &model.Reference{Doctype: "Lead", Name: name}, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	return nil, nil
}

// IsDoNotDisturb reports whether a contact with this number opted out.
// Unknown numbers are not DND.
func (r *ContactRepository) IsDoNotDisturb(phone string) (bool, error) {
	var dnd bool
	err := r.DB.QueryRow(`SELECT do_not_disturb FROM contacts WHERE mobile_no=$1 LIMIT 1`, phone).Scan(&dnd)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return dnd, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
