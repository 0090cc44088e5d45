package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Passenger struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
}

func NewPassenger(firstName, lastName, email string) (*Passenger, error) {
	p := &Passenger{
		ID:        uuid.New(),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     strings.ToLower(strings.TrimSpace(email)),
	}
	switch {
	case p.FirstName == "":
		return nil, fmt.Errorf("%w: first name is required", ErrInvalidInput)
	case p.LastName == "":
		return nil, fmt.Errorf("%w: last name is required", ErrInvalidInput)
	case p.Email == "":
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return p, nil
}

func (p *Passenger) DisplayName() string {
	return p.FirstName + " " + p.LastName
}
