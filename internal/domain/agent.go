package domain

// Agent models a support employee who can receive tickets.
type Agent struct {
	ID                string
	Name              string
	Team              string
	Languages         []string
	Region            string
	Specializations   []string
	MaxCapacity       int
	CanManageProjects bool
}

// Customer is the requester of a ticket. Only its locale is used for scoring.
type Customer struct {
	ID       string
	Language string
	Region   string
}
