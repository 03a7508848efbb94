package model

import (
    "strings"
    "time"
)

// Entry is one address-book record. Addresses are stored as two lines; a
// legacy single "street" value is split with SplitStreet on the way in.
type Entry struct {
    ID           uint64    `json:"_id"`
    Name         string    `json:"name"`
    AddressLine1 string    `json:"addressLine1"`
    AddressLine2 string    `json:"addressLine2"`
    Zipcode      string    `json:"zipcode"`
    City         string    `json:"city"`
    Floor        string    `json:"floor"`
    Door         string    `json:"door"`
    Telephone    string    `json:"telephone"`
    Email        string    `json:"email"`
    CreatedBy    Creator   `json:"createdBy"`
    CreatedAt    time.Time `json:"createdAt"`
    UpdatedAt    time.Time `json:"updatedAt"`
}

// Creator is the resolved createdBy reference.
type Creator struct {
    ID       uint64 `json:"_id"`
    Username string `json:"username"`
}

const streetSeparator = ", "

// SplitStreet turns a combined street value into address lines. Only the
// first separator splits; anything after it stays in line two.
func SplitStreet(street string) (line1, line2 string) {
    street = strings.TrimSpace(street)
    before, after, found := strings.Cut(street, streetSeparator)
    if !found {
        return street, ""
    }
    return strings.TrimSpace(before), strings.TrimSpace(after)
}

// Street joins the address lines back into the combined form.
func (e Entry) Street() string {
    if e.AddressLine2 == "" {
        return e.AddressLine1
    }
    return e.AddressLine1 + streetSeparator + e.AddressLine2
}
